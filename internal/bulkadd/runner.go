package bulkadd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jamhq/jam/internal/job"
	"github.com/jamhq/jam/internal/metrics"
	"github.com/jamhq/jam/internal/store"
)

// Task is one scheduled bulk-add run: the job to account against and the
// companies to insert, in the order fixed at diff time.
type Task struct {
	JobID        int64
	CollectionID string
	CompanyIDs   []int64
}

// Runner executes bulk-add tasks on a fixed pool of workers. Each worker
// inserts one association at a time, re-reading the job's durable status
// before every insert so a cancellation lands within one unit of work.
// Progress snapshots are fanned out to subscribers after every commit.
type Runner struct {
	tasks       chan Task
	ledger      store.Ledger
	concurrency int

	mu   sync.RWMutex
	subs map[int64][]chan job.BulkAddJob

	wg sync.WaitGroup
}

func NewRunner(ledger store.Ledger, queueSize, concurrency int) *Runner {
	return &Runner{
		tasks:       make(chan Task, queueSize),
		ledger:      ledger,
		concurrency: concurrency,
		subs:        make(map[int64][]chan job.BulkAddJob),
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for range r.concurrency {
		go r.runWorker(ctx)
	}
}

// Schedule queues a task for execution. Returns an error if the queue is full.
func (r *Runner) Schedule(t Task) error {
	r.wg.Add(1)
	select {
	case r.tasks <- t:
		return nil
	default:
		r.wg.Done()
		return fmt.Errorf("task queue full: cannot schedule job %d", t.JobID)
	}
}

// Wait blocks until every scheduled task has finished. Callers must keep the
// runner's context alive until Wait returns; it exists so tests and shutdown
// paths can await background completion deterministically.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Subscribe creates a buffered snapshot channel for a job. The channel
// receives a ledger snapshot after each committed insert and is closed when
// the job reaches a terminal state.
func (r *Runner) Subscribe(jobID int64) chan job.BulkAddJob {
	ch := make(chan job.BulkAddJob, 64)
	r.mu.Lock()
	r.subs[jobID] = append(r.subs[jobID], ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a snapshot channel from the fanout map.
func (r *Runner) Unsubscribe(jobID int64, ch chan job.BulkAddJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chans := r.subs[jobID]
	for i, c := range chans {
		if c == ch {
			r.subs[jobID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(r.subs[jobID]) == 0 {
		delete(r.subs, jobID)
	}
}

func (r *Runner) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.tasks:
			r.run(ctx, t)
		}
	}
}

// run inserts the task's pairs one at a time. Every iteration re-reads the
// job status from the ledger, never a cached copy, so a cancel committed by
// the API is observed before the next insert.
func (r *Runner) run(ctx context.Context, t Task) {
	defer r.wg.Done()

	for _, companyID := range t.CompanyIDs {
		status, err := r.ledger.JobStatus(ctx, t.JobID)
		if err != nil {
			r.fail(ctx, t.JobID, fmt.Errorf("read job status: %w", err))
			return
		}
		if status == job.StatusCancelled {
			// The cancel endpoint already set the terminal state; leave added
			// as-is and stop without touching the ledger.
			slog.Info("bulk add cancelled", "job_id", t.JobID)
			metrics.IncJobFinished(string(job.StatusCancelled))
			r.notifyAndClose(ctx, t.JobID)
			return
		}

		if err := r.ledger.InsertPair(ctx, t.JobID, companyID, t.CollectionID); err != nil {
			r.fail(ctx, t.JobID, fmt.Errorf("insert company %d: %w", companyID, err))
			return
		}
		metrics.IncAssociationInserted()
		r.notify(ctx, t.JobID)
	}

	// The final InsertPair flipped the job to completed (or a late cancel won
	// the race and the status stayed cancelled).
	slog.Info("bulk add finished", "job_id", t.JobID, "pairs", len(t.CompanyIDs))
	metrics.IncJobFinished(string(job.StatusCompleted))
	r.notifyAndClose(ctx, t.JobID)
}

// fail records the terminal failed state. No caller is waiting synchronously,
// so the triggering error is logged for operator visibility. A shutdown is
// not a job failure: the row stays in_progress, matching the crash contract.
func (r *Runner) fail(ctx context.Context, jobID int64, err error) {
	if ctx.Err() != nil {
		slog.Info("bulk add interrupted by shutdown", "job_id", jobID)
		return
	}

	slog.Error("bulk add failed", "job_id", jobID, "error", err)
	if markErr := r.ledger.MarkJobFailed(ctx, jobID); markErr != nil {
		slog.Error("bulk add: mark failed", "job_id", jobID, "error", markErr)
	}
	metrics.IncJobFinished(string(job.StatusFailed))
	r.notifyAndClose(ctx, jobID)
}

// notify sends the current ledger snapshot to all subscribers without blocking.
func (r *Runner) notify(ctx context.Context, jobID int64) {
	r.mu.RLock()
	chans := r.subs[jobID]
	r.mu.RUnlock()
	if len(chans) == 0 {
		return
	}

	snapshot, err := r.ledger.GetJob(ctx, jobID)
	if err != nil || snapshot == nil {
		return
	}
	for _, ch := range chans {
		select {
		case ch <- *snapshot:
		default:
		}
	}
}

// notifyAndClose sends the final snapshot and closes all channels for the job.
func (r *Runner) notifyAndClose(ctx context.Context, jobID int64) {
	r.mu.Lock()
	chans := r.subs[jobID]
	delete(r.subs, jobID)
	r.mu.Unlock()
	if len(chans) == 0 {
		return
	}

	snapshot, err := r.ledger.GetJob(ctx, jobID)
	for _, ch := range chans {
		if err == nil && snapshot != nil {
			select {
			case ch <- *snapshot:
			default:
			}
		}
		close(ch)
	}
}
