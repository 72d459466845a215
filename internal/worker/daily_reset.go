package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/atlasleads/sendguard/internal/pkg/distlock"
)

// DailyResetRunner fires the daily counter reset at local midnight. The
// distributed lock keeps exactly one engine process running the reset
// when several share the database.
type DailyResetRunner struct {
	reset Resetter
	lock  distlock.DistLock
	loc   *time.Location
	now   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Resetter is implemented by the health service.
type Resetter interface {
	ResetDailyCounters(ctx context.Context) (int, error)
}

func NewDailyResetRunner(reset Resetter, lock distlock.DistLock, loc *time.Location) *DailyResetRunner {
	return &DailyResetRunner{reset: reset, lock: lock, loc: loc, now: time.Now}
}

// Start schedules the next reset and reschedules after each firing.
func (r *DailyResetRunner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			wait := r.untilNextMidnight()
			log.Printf("[DailyReset] next reset in %s", wait.Round(time.Second))
			if !sleepCtx(ctx, wait) {
				return
			}
			if _, err := r.RunOnce(ctx); err != nil {
				log.Printf("[DailyReset] run: %v", err)
			}
		}
	}()
}

func (r *DailyResetRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunOnce performs one lock-guarded reset pass. Returns the number of
// accounts reset, or 0 when another process holds the lock.
func (r *DailyResetRunner) RunOnce(ctx context.Context) (int, error) {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if !acquired {
		log.Println("[DailyReset] another process holds the reset lock, skipping")
		return 0, nil
	}
	defer func() {
		if rerr := r.lock.Release(ctx); rerr != nil {
			log.Printf("[DailyReset] release lock: %v", rerr)
		}
	}()

	n, err := r.reset.ResetDailyCounters(ctx)
	if err != nil {
		return n, err
	}
	log.Printf("[DailyReset] reset daily counters for %d accounts", n)
	return n, nil
}

func (r *DailyResetRunner) untilNextMidnight() time.Duration {
	now := r.now().In(r.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc).AddDate(0, 0, 1)
	return next.Sub(now)
}
