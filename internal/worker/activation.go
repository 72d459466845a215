package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlasleads/sendguard/internal/channel"
	"github.com/atlasleads/sendguard/internal/compose"
	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/gate"
	"github.com/atlasleads/sendguard/internal/pkg/logger"
)

// =============================================================================
// ACTIVATION SCHEDULER - low volume filler traffic between pool accounts
// =============================================================================
// Newly connected accounts with no traffic look suspicious to the
// channel. The scheduler sends occasional casual messages between the
// pool's own accounts at randomized intervals inside a configured hour
// window, bounded by its own daily sub-quota and by the throttle gate.

var (
	// ErrNotEnoughAccounts rejects enabling activation when fewer than
	// two accounts have connected sessions.
	ErrNotEnoughAccounts = errors.New("activation requires at least two connected accounts")

	// ErrInvalidActivationConfig rejects malformed config updates.
	ErrInvalidActivationConfig = errors.New("invalid activation config")
)

// ActivationConfigStore persists the singleton activation config.
type ActivationConfigStore interface {
	ActivationConfig(ctx context.Context) (*domain.ActivationConfig, error)
	SaveActivationConfig(ctx context.Context, cfg *domain.ActivationConfig) error
}

// ActivationLogStore records every attempt the scheduler makes.
type ActivationLogStore interface {
	AppendActivationLog(ctx context.Context, entry *domain.ActivationLogEntry) error
}

// ActivationRunner drives the filler traffic loop.
type ActivationRunner struct {
	store    ActivationConfigStore
	logs     ActivationLogStore
	registry channel.Registry
	adapter  channel.Adapter
	accounts AccountGetter
	gate     *gate.Gate
	quota    *ActivationQuota
	composer compose.Composer
	loc      *time.Location

	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewActivationRunner(store ActivationConfigStore, logs ActivationLogStore, registry channel.Registry, adapter channel.Adapter, accounts AccountGetter, g *gate.Gate, quota *ActivationQuota, composer compose.Composer, loc *time.Location) *ActivationRunner {
	return &ActivationRunner{
		store:    store,
		logs:     logs,
		registry: registry,
		adapter:  adapter,
		accounts: accounts,
		gate:     g,
		quota:    quota,
		composer: composer,
		loc:      loc,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNow overrides the clock for tests.
func (r *ActivationRunner) SetNow(now func() time.Time) { r.now = now }

// Start launches the background loop. Config is re-read every tick, so
// operator changes (including pausing via is_active) apply without a
// restart.
func (r *ActivationRunner) Start() {
	if r.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
	log.Println("[Activation] scheduler started")
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (r *ActivationRunner) Stop() {
	if !r.running.Swap(false) {
		return
	}
	r.cancel()
	r.wg.Wait()
	log.Println("[Activation] scheduler stopped")
}

// IsRunning reports whether the background loop is active.
func (r *ActivationRunner) IsRunning() bool { return r.running.Load() }

func (r *ActivationRunner) loop(ctx context.Context) {
	for {
		cfg, err := r.store.ActivationConfig(ctx)
		if err != nil {
			log.Printf("[Activation] load config: %v", err)
			if !sleepCtx(ctx, time.Minute) {
				return
			}
			continue
		}

		if cfg.IsActive {
			if err := r.Tick(ctx); err != nil {
				log.Printf("[Activation] tick: %v", err)
			}
		}

		if !sleepCtx(ctx, r.nextDelay(cfg)) {
			return
		}
	}
}

// nextDelay jitters uniformly inside [MinDelaySeconds, MaxDelaySeconds].
// When activation is disabled the loop polls at the minimum delay so a
// re-enable is noticed promptly.
func (r *ActivationRunner) nextDelay(cfg *domain.ActivationConfig) time.Duration {
	min, max := cfg.MinDelaySeconds, cfg.MaxDelaySeconds
	if min <= 0 {
		min = 60
	}
	if max < min {
		max = min
	}
	if !cfg.IsActive {
		return time.Duration(min) * time.Second
	}
	r.rngMu.Lock()
	n := min + r.rng.Intn(max-min+1)
	r.rngMu.Unlock()
	return time.Duration(n) * time.Second
}

// Tick runs one activation cycle end to end: window check, pair pick,
// quota and gate checks, compose, deliver, log. Every skip short-circuits
// to a no-op so a quiet tick costs nothing. Exposed for the send-now API
// and for tests.
func (r *ActivationRunner) Tick(ctx context.Context) error {
	cfg, err := r.store.ActivationConfig(ctx)
	if err != nil {
		return fmt.Errorf("load activation config: %w", err)
	}
	if !cfg.IsActive {
		return nil
	}
	now := r.now().In(r.loc)
	if !cfg.InWindow(now) {
		return nil
	}

	connected, err := r.registry.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("list connected sessions: %w", err)
	}
	if len(connected) < 2 {
		return nil
	}

	sender, receiver := r.pickPair(connected)

	// Gate first (read-only), then reserve a sub-quota slot. The order
	// keeps a gate refusal from burning quota.
	decision, err := r.gate.CanSendNow(ctx, sender)
	if err != nil {
		return fmt.Errorf("gate check %s: %w", sender, err)
	}
	if !decision.Allowed {
		return nil
	}

	allowed, err := r.quota.Allow(ctx, sender, cfg.MessagesPerDayPerAccount)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	recv, err := r.accounts.Get(ctx, receiver)
	if err != nil {
		return fmt.Errorf("load receiver %s: %w", receiver, err)
	}
	if recv.PhoneNumber == "" {
		return nil
	}

	msg, err := r.composer.Compose(ctx, cfg.MessageStyle)
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	entry := &domain.ActivationLogEntry{
		FromAccountID: sender,
		ToAccountID:   receiver,
		Message:       msg,
		CreatedAt:     r.now(),
	}

	result, err := r.gate.Dispatch(ctx, sender, func(c context.Context) error {
		res, sendErr := r.adapter.Send(c, sender, recv.PhoneNumber, msg)
		if sendErr != nil {
			return sendErr
		}
		if !res.Success {
			return fmt.Errorf("channel delivery failed: %s", res.Error)
		}
		return nil
	})
	switch {
	case err == nil && !result.Allowed:
		// The advisory check above passed, but a concurrent send on the
		// same account landed before the in-lock re-check. Nothing was
		// delivered, so the entry must not claim a send.
		entry.Status = "failed"
		entry.Error = fmt.Sprintf("send refused: %s", result.Reason)
	case errors.Is(err, gate.ErrSendNotRecorded):
		// Delivered; only the counter write failed.
		entry.Status = "sent"
		log.Printf("[Activation] send %s -> %s delivered but not recorded: %v", sender, receiver, err)
	case err != nil:
		// Delivery failures are logged per attempt; they never stop the
		// scheduler itself.
		entry.Status = "failed"
		entry.Error = err.Error()
		log.Printf("[Activation] send %s -> %s failed: %s", sender, receiver, logger.RedactText(err.Error()))
	default:
		entry.Status = "sent"
	}

	if lerr := r.logs.AppendActivationLog(ctx, entry); lerr != nil {
		log.Printf("[Activation] append log: %v", lerr)
	}
	return nil
}

// pickPair selects a random sender and a distinct random receiver.
func (r *ActivationRunner) pickPair(ids []string) (string, string) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	si := r.rng.Intn(len(ids))
	ri := r.rng.Intn(len(ids) - 1)
	if ri >= si {
		ri++
	}
	return ids[si], ids[ri]
}

// Config returns the current activation configuration.
func (r *ActivationRunner) Config(ctx context.Context) (*domain.ActivationConfig, error) {
	return r.store.ActivationConfig(ctx)
}

// UpdateConfig validates and persists a config change. Enabling requires
// at least two connected sessions up front so the loop is never active
// with nothing to do.
func (r *ActivationRunner) UpdateConfig(ctx context.Context, cfg *domain.ActivationConfig) (*domain.ActivationConfig, error) {
	if err := validateActivationConfig(cfg); err != nil {
		return nil, err
	}

	current, err := r.store.ActivationConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activation config: %w", err)
	}

	if cfg.IsActive && !current.IsActive {
		connected, err := r.registry.ListConnected(ctx)
		if err != nil {
			return nil, fmt.Errorf("list connected sessions: %w", err)
		}
		if len(connected) < 2 {
			return nil, ErrNotEnoughAccounts
		}
	}

	cfg.UpdatedAt = r.now()
	if err := r.store.SaveActivationConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save activation config: %w", err)
	}
	log.Printf("[Activation] config updated: active=%v window=%d-%d style=%s", cfg.IsActive, cfg.StartHour, cfg.EndHour, cfg.MessageStyle)
	return cfg, nil
}

func validateActivationConfig(cfg *domain.ActivationConfig) error {
	if cfg.MinDelaySeconds <= 0 || cfg.MaxDelaySeconds <= cfg.MinDelaySeconds {
		return fmt.Errorf("%w: delay bounds %d-%d", ErrInvalidActivationConfig, cfg.MinDelaySeconds, cfg.MaxDelaySeconds)
	}
	if cfg.MessagesPerDayPerAccount <= 0 {
		return fmt.Errorf("%w: messages per day must be positive", ErrInvalidActivationConfig)
	}
	if cfg.StartHour < 0 || cfg.StartHour > 23 || cfg.EndHour < 1 || cfg.EndHour > 24 || cfg.EndHour <= cfg.StartHour {
		return fmt.Errorf("%w: hour window %d-%d", ErrInvalidActivationConfig, cfg.StartHour, cfg.EndHour)
	}
	if !domain.ValidMessageStyle(cfg.MessageStyle) {
		return fmt.Errorf("%w: unknown style %q", ErrInvalidActivationConfig, cfg.MessageStyle)
	}
	return nil
}
