package main

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/atlasleads/sendguard/internal/api"
	"github.com/atlasleads/sendguard/internal/channel"
	"github.com/atlasleads/sendguard/internal/compose"
	"github.com/atlasleads/sendguard/internal/config"
	"github.com/atlasleads/sendguard/internal/gate"
	"github.com/atlasleads/sendguard/internal/pkg/distlock"
	"github.com/atlasleads/sendguard/internal/pkg/logger"
	"github.com/atlasleads/sendguard/internal/repository/postgres"
	"github.com/atlasleads/sendguard/internal/service/account"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
	"github.com/atlasleads/sendguard/internal/service/health"
	"github.com/atlasleads/sendguard/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	loc := cfg.Location()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// go-redis reconnects on its own; the activation sub-quota just
		// errors (and skips sends) until Redis is back.
		log.Printf("redis unreachable at startup: %v", err)
	}

	// Repositories
	accountRepo := postgres.NewAccountRepo(db)
	healthRepo := postgres.NewHealthRepo(db)
	dispatchRepo := postgres.NewDispatchRepo(db)
	activationRepo := postgres.NewActivationRepo(db, loc)

	// Core engine
	g := gate.New(accountRepo, cfg.Health.Thresholds, loc)
	accountSvc := account.NewService(accountRepo, account.Defaults{
		MaxDailyMessages:   cfg.Accounts.DefaultMaxDailyMessages,
		MinIntervalSeconds: cfg.Accounts.DefaultMinIntervalSeconds,
	}, cfg.Health.Thresholds)
	healthSvc := health.NewService(healthRepo, g, health.Config{
		Deltas: health.Deltas{
			Report:           cfg.Health.Deltas.Report,
			Block:            cfg.Health.Deltas.Block,
			NoReply:          cfg.Health.Deltas.NoReply,
			NoReplyStreakCap: cfg.Health.Deltas.NoReplyStreakCap,
		},
		Thresholds:    cfg.Health.Thresholds,
		DecayHalfLife: time.Duration(cfg.Health.Recompute.DecayHalfLifeDays * 24 * float64(time.Hour)),
		MinEventDelta: cfg.Health.MinEventDelta,
	})
	jobsSvc := dispatch.NewService(dispatchRepo, accountRepo)

	bridge := channel.NewBridge(cfg.Channel.BridgeURL, cfg.Channel.APIKey, cfg.Channel.Timeout)

	dispatcher := worker.NewDispatcher(jobsSvc, dispatchRepo, accountRepo, g, bridge, healthSvc,
		time.Duration(cfg.Dispatch.DefaultDelaySeconds)*time.Second)

	quota := worker.NewActivationQuota(redisClient, loc)
	composer := compose.NewCannedComposer(rand.NewSource(time.Now().UnixNano()))
	activation := worker.NewActivationRunner(activationRepo, activationRepo, bridge, bridge,
		accountRepo, g, quota, composer, loc)

	dailyReset := worker.NewDailyResetRunner(healthSvc,
		distlock.NewLock(redisClient, db, "sendguard:daily_reset", 5*time.Minute), loc)
	recompute := worker.NewRecomputeRunner(healthSvc,
		distlock.NewLock(redisClient, db, "sendguard:recompute", 5*time.Minute),
		time.Duration(cfg.Health.Recompute.IntervalMinutes)*time.Minute)

	// Resume jobs a previous process left running.
	if n, err := dispatcher.RecoverRunning(context.Background()); err != nil {
		log.Printf("recover running jobs: %v", err)
	} else if n > 0 {
		log.Printf("recovered %d running jobs", n)
	}

	activation.Start()
	dailyReset.Start()
	recompute.Start()

	server := api.NewServer(cfg.Server.Port, &api.Handlers{
		Accounts:   accountSvc,
		Health:     healthSvc,
		Jobs:       jobsSvc,
		Dispatcher: dispatcher,
		Activation: activation,
		ActLog:     activationRepo,
		Gate:       g,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	recompute.Stop()
	dailyReset.Stop()
	activation.Stop()
	dispatcher.Stop()
	log.Println("shutdown complete")
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
