package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/atlasleads/sendguard/internal/pkg/distlock"
	"github.com/atlasleads/sendguard/internal/service/health"
)

// RecomputeRunner periodically rebuilds every account's health score
// from its decayed event history, picking up drift the incremental
// deltas miss (event aging, quota pressure, reply rates).
type RecomputeRunner struct {
	health   Recomputer
	lock     distlock.DistLock
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Recomputer is implemented by the health service.
type Recomputer interface {
	RecomputeAll(ctx context.Context) ([]health.RecomputeResult, error)
}

func NewRecomputeRunner(h Recomputer, lock distlock.DistLock, interval time.Duration) *RecomputeRunner {
	return &RecomputeRunner{health: h, lock: lock, interval: interval}
}

func (r *RecomputeRunner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			if !sleepCtx(ctx, r.interval) {
				return
			}
			if err := r.RunOnce(ctx); err != nil {
				log.Printf("[Recompute] run: %v", err)
			}
		}
	}()
	log.Printf("[Recompute] scheduled every %s", r.interval)
}

func (r *RecomputeRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunOnce performs one lock-guarded recompute pass over all accounts.
func (r *RecomputeRunner) RunOnce(ctx context.Context) error {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if rerr := r.lock.Release(ctx); rerr != nil {
			log.Printf("[Recompute] release lock: %v", rerr)
		}
	}()

	results, err := r.health.RecomputeAll(ctx)
	if err != nil {
		return err
	}
	changed := 0
	for _, res := range results {
		if len(res.Reasons) > 0 {
			changed++
		}
	}
	log.Printf("[Recompute] recomputed %d accounts, %d adjusted", len(results), changed)
	return nil
}
