package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/atlasleads/sendguard/internal/channel"
	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/gate"
	"github.com/atlasleads/sendguard/internal/pkg/logger"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
)

// =============================================================================
// CAMPAIGN DISPATCHER - one loop per running dispatch job
// =============================================================================
// Walks a job's items in strict position order through the throttle gate
// and the channel adapter. Pause/resume/cancel are cooperative signals
// observed at item boundaries; sleeps are cancellable so a pause takes
// effect promptly instead of after a full delay elapses.

// IncidentRecorder is the slice of the health ledger the dispatcher needs:
// feeding channel warnings back as incidents.
type IncidentRecorder interface {
	ReportIncident(ctx context.Context, accountID string, t domain.HealthEventType, description string) (*domain.HealthEvent, error)
}

// AccountGetter resolves the sender account for delay fallback.
type AccountGetter interface {
	Get(ctx context.Context, id string) (*domain.SenderAccount, error)
}

// Dispatcher owns the run loops of all active jobs in this process.
type Dispatcher struct {
	jobs     *dispatch.Service
	repo     dispatch.Repository
	accounts AccountGetter
	gate     *gate.Gate
	adapter  channel.Adapter
	health   IncidentRecorder

	defaultDelay time.Duration
	now          func() time.Time

	mu      sync.Mutex
	loops   map[string]*loopHandle
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// loopHandle lets stopLoop wait for a loop goroutine to fully unwind,
// not just signal it. Cancel must not finalize a job while its loop can
// still write item state.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher. defaultDelay is the inter-message
// delay used when neither the job nor the account configures one.
func NewDispatcher(jobs *dispatch.Service, repo dispatch.Repository, accounts AccountGetter, g *gate.Gate, adapter channel.Adapter, health IncidentRecorder, defaultDelay time.Duration) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		jobs:         jobs,
		repo:         repo,
		accounts:     accounts,
		gate:         g,
		adapter:      adapter,
		health:       health,
		defaultDelay: defaultDelay,
		now:          time.Now,
		loops:        make(map[string]*loopHandle),
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// Run transitions a job to running and starts its loop. Works from
// config, previewing, or paused.
func (d *Dispatcher) Run(ctx context.Context, jobID string) error {
	if _, err := d.jobs.Transition(ctx, jobID, domain.JobRunning, ""); err != nil {
		return err
	}
	d.startLoop(jobID)
	return nil
}

// Resume re-enters a paused job's loop at the first pending item.
func (d *Dispatcher) Resume(ctx context.Context, jobID string) error {
	return d.Run(ctx, jobID)
}

// Pause halts a running job at its next safe boundary, never mid-send.
func (d *Dispatcher) Pause(ctx context.Context, jobID, reason string) error {
	if _, err := d.jobs.Pause(ctx, jobID, reason); err != nil {
		return err
	}
	d.stopLoop(jobID)
	return nil
}

// Cancel forces the job to done and skips its remaining pending items.
// The loop must be fully stopped first: a loop parked in a retry wait
// still holds an item as sending and reverts it to pending on its way
// out, and that revert has to land before the final skip-and-finalize.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) error {
	d.stopLoop(jobID)
	if _, err := d.jobs.Cancel(ctx, jobID); err != nil {
		return err
	}
	return nil
}

// RecoverRunning restarts loops for jobs left in running status by a
// previous process, first requeueing items stuck mid-send.
func (d *Dispatcher) RecoverRunning(ctx context.Context) (int, error) {
	jobs, err := d.repo.JobsInStatus(ctx, domain.JobRunning)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		if n, err := d.repo.RequeueSending(ctx, j.ID); err != nil {
			log.Printf("[Dispatcher] requeue sending items for %s: %v", j.ID, err)
		} else if n > 0 {
			log.Printf("[Dispatcher] requeued %d in-flight items for job %s", n, j.ID)
		}
		d.startLoop(j.ID)
	}
	return len(jobs), nil
}

// Stop cancels all loops and waits for them to unwind. Jobs stay in
// running status; RecoverRunning picks them up on the next boot.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
	log.Println("[Dispatcher] stopped")
}

func (d *Dispatcher) startLoop(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.loops[jobID]; exists {
		return
	}
	ctx, cancel := context.WithCancel(d.baseCtx)
	h := &loopHandle{cancel: cancel, done: make(chan struct{})}
	d.loops[jobID] = h
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(h.done)
		defer func() {
			d.mu.Lock()
			delete(d.loops, jobID)
			d.mu.Unlock()
		}()
		d.loop(ctx, jobID)
	}()
}

// stopLoop signals the job's loop and blocks until it has exited, so the
// caller sees every item-state write the loop makes while unwinding.
func (d *Dispatcher) stopLoop(jobID string) {
	d.mu.Lock()
	h, ok := d.loops[jobID]
	d.mu.Unlock()
	if ok {
		h.cancel()
		<-h.done
	}
}

// loop processes one job until it completes, pauses, or the context is
// cancelled. Items are handled strictly in position order.
func (d *Dispatcher) loop(ctx context.Context, jobID string) {
	log.Printf("[Dispatcher] job %s loop started", jobID)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := d.repo.Job(ctx, jobID)
		if err != nil {
			log.Printf("[Dispatcher] job %s: load failed: %v", jobID, err)
			return
		}
		// Another process (or an operator API call) may have paused or
		// cancelled the job; the loop observes that here, between items.
		if job.Status != domain.JobRunning {
			log.Printf("[Dispatcher] job %s no longer running (%s), loop exiting", jobID, job.Status)
			return
		}

		item, err := d.repo.NextPending(ctx, jobID)
		if err != nil {
			log.Printf("[Dispatcher] job %s: next item: %v", jobID, err)
			return
		}
		if item == nil {
			d.complete(jobID)
			return
		}

		if err := d.repo.UpdateItem(ctx, item.ID, domain.ItemSending, "", nil); err != nil {
			log.Printf("[Dispatcher] job %s: mark sending: %v", jobID, err)
			return
		}

		proceed := d.processItem(ctx, job, item)
		if !proceed {
			return
		}

		if !sleepCtx(ctx, d.itemDelay(ctx, job)) {
			return
		}
	}
}

// processItem drives one item through the gate and the adapter. Returns
// false when the loop must stop (pause, cancellation, hard fault).
func (d *Dispatcher) processItem(ctx context.Context, job *domain.DispatchJob, item *domain.DispatchItem) bool {
	for {
		var res channel.Result
		decision, err := d.gate.Dispatch(ctx, job.AccountID, func(c context.Context) error {
			r, sendErr := d.adapter.Send(c, job.AccountID, item.Recipient, item.Body)
			if sendErr != nil {
				return sendErr
			}
			res = r
			if !r.Success {
				return fmt.Errorf("channel delivery failed: %s", r.Error)
			}
			return nil
		})

		if err != nil && !decision.Allowed {
			// Store-level fault (unknown account etc). Continuing would
			// silently skip items, so surface it as a pause instead.
			d.pauseWithReason(job.ID, item.ID, fmt.Sprintf("dispatch fault: %v", err))
			return false
		}

		if !decision.Allowed {
			switch decision.Reason {
			case gate.ReasonAccountUnhealthy:
				// Hard stop. Keeping the loop retrying an unhealthy
				// account would be actively harmful, so the whole job
				// pauses and reports why.
				d.pauseWithReason(job.ID, item.ID, string(decision.Reason))
				return false
			default:
				// Quota or interval: routine flow control, wait it out.
				if !sleepCtx(ctx, decision.RetryAfter) {
					d.revertToPending(item.ID)
					return false
				}
				continue
			}
		}

		if err != nil && !errors.Is(err, gate.ErrSendNotRecorded) {
			// Delivery failed. Record per item; no automatic retry.
			msg := res.Error
			if msg == "" {
				msg = err.Error()
			}
			if uerr := d.repo.UpdateItem(context.Background(), item.ID, domain.ItemFailed, msg, nil); uerr != nil {
				log.Printf("[Dispatcher] job %s: mark failed: %v", job.ID, uerr)
			}
			log.Printf("[Dispatcher] job %s: send to %s failed: %s", job.ID, logger.RedactPhone(item.Recipient), logger.RedactText(msg))
			return true
		}

		if err != nil {
			// The message left the channel; only the counter write failed.
			// The item is sent either way, the accounting fault gets logged.
			log.Printf("[Dispatcher] job %s: send to %s delivered but not recorded: %v", job.ID, logger.RedactPhone(item.Recipient), err)
		}

		sentAt := d.now()
		if uerr := d.repo.UpdateItem(context.Background(), item.ID, domain.ItemSent, "", &sentAt); uerr != nil {
			log.Printf("[Dispatcher] job %s: mark sent: %v", job.ID, uerr)
		}

		if res.ChannelWarning {
			if _, herr := d.health.ReportIncident(context.Background(), job.AccountID, domain.EventReport, "channel warning during campaign send"); herr != nil {
				log.Printf("[Dispatcher] job %s: record channel warning: %v", job.ID, herr)
			}
		}
		return true
	}
}

// pauseWithReason reverts the in-flight item to pending and pauses the
// job with an operator-visible reason. Uses a background context because
// the loop context may already be cancelled.
func (d *Dispatcher) pauseWithReason(jobID, itemID, reason string) {
	d.revertToPending(itemID)
	if _, err := d.jobs.Pause(context.Background(), jobID, reason); err != nil &&
		!errors.Is(err, dispatch.ErrInvalidTransition) && !errors.Is(err, dispatch.ErrJobDone) {
		log.Printf("[Dispatcher] job %s: pause: %v", jobID, err)
	}
	log.Printf("[Dispatcher] job %s paused: %s", jobID, reason)
}

// revertToPending puts an item claimed as sending back in the queue so a
// resume reprocesses it rather than losing it.
func (d *Dispatcher) revertToPending(itemID string) {
	if err := d.repo.UpdateItem(context.Background(), itemID, domain.ItemPending, "", nil); err != nil {
		log.Printf("[Dispatcher] revert item %s to pending: %v", itemID, err)
	}
}

func (d *Dispatcher) complete(jobID string) {
	if _, err := d.jobs.Transition(context.Background(), jobID, domain.JobDone, ""); err != nil {
		log.Printf("[Dispatcher] job %s: complete: %v", jobID, err)
		return
	}
	log.Printf("[Dispatcher] job %s done", jobID)
}

// itemDelay resolves the inter-message delay: the job's explicit
// override, else the account's minimum interval, else the configured
// default. This delay is an operator safety margin on top of the hard
// floor the gate enforces independently.
func (d *Dispatcher) itemDelay(ctx context.Context, job *domain.DispatchJob) time.Duration {
	if job.DelaySeconds != nil {
		return time.Duration(*job.DelaySeconds) * time.Second
	}
	if acc, err := d.accounts.Get(ctx, job.AccountID); err == nil && acc.MinIntervalSeconds > 0 {
		return acc.MinInterval()
	}
	return d.defaultDelay
}

// sleepCtx sleeps for dur unless the context is cancelled first.
// Returns false on cancellation.
func sleepCtx(ctx context.Context, dur time.Duration) bool {
	if dur <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
