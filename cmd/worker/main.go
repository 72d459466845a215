// Command worker runs the engine's background loops without the HTTP
// API: dispatch job recovery, the activation scheduler, the daily reset,
// and the score recompute. Deploy it next to cmd/server when the API
// host shouldn't also carry the send loops.
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

	"github.com/atlasleads/sendguard/internal/channel"
	"github.com/atlasleads/sendguard/internal/compose"
	"github.com/atlasleads/sendguard/internal/config"
	"github.com/atlasleads/sendguard/internal/gate"
	"github.com/atlasleads/sendguard/internal/pkg/distlock"
	"github.com/atlasleads/sendguard/internal/repository/postgres"
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

	loc := cfg.Location()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		log.Fatalf("connect database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	accountRepo := postgres.NewAccountRepo(db)
	healthRepo := postgres.NewHealthRepo(db)
	dispatchRepo := postgres.NewDispatchRepo(db)
	activationRepo := postgres.NewActivationRepo(db, loc)

	g := gate.New(accountRepo, cfg.Health.Thresholds, loc)
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
	activation := worker.NewActivationRunner(activationRepo, activationRepo, bridge, bridge,
		accountRepo, g, worker.NewActivationQuota(redisClient, loc),
		compose.NewCannedComposer(rand.NewSource(time.Now().UnixNano())), loc)
	dailyReset := worker.NewDailyResetRunner(healthSvc,
		distlock.NewLock(redisClient, db, "sendguard:daily_reset", 5*time.Minute), loc)
	recompute := worker.NewRecomputeRunner(healthSvc,
		distlock.NewLock(redisClient, db, "sendguard:recompute", 5*time.Minute),
		time.Duration(cfg.Health.Recompute.IntervalMinutes)*time.Minute)

	if n, err := dispatcher.RecoverRunning(context.Background()); err != nil {
		log.Printf("recover running jobs: %v", err)
	} else {
		log.Printf("recovered %d running jobs", n)
	}

	activation.Start()
	dailyReset.Start()
	recompute.Start()
	log.Println("worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Printf("received %s, shutting down", sig)

	recompute.Stop()
	dailyReset.Stop()
	activation.Stop()
	dispatcher.Stop()
	log.Println("shutdown complete")
}
