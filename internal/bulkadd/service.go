// Package bulkadd implements the bulk-add job subsystem: diff computation,
// job creation and the background workers that insert associations one pair
// at a time.
package bulkadd

import (
	"context"
	"fmt"

	"github.com/jamhq/jam/internal/job"
	"github.com/jamhq/jam/internal/metrics"
	"github.com/jamhq/jam/internal/store"
)

// AddRequest selects the companies to add to a collection. Exactly one of the
// two fields must be set. A present-but-empty CompanyIDs list is a valid
// selector that yields an empty diff.
type AddRequest struct {
	CompanyIDs         []int64 `json:"company_ids,omitempty"`
	SourceCollectionID string  `json:"source_collection_id,omitempty"`
}

// Service owns the bulk-add job lifecycle: it validates requests, computes
// the diff, commits the ledger row and hands the insert work to the Runner.
type Service struct {
	catalog store.Catalog
	ledger  store.Ledger
	runner  *Runner
}

func NewService(catalog store.Catalog, ledger store.Ledger, runner *Runner) *Service {
	return &Service{catalog: catalog, ledger: ledger, runner: runner}
}

// CreateJob validates the request, computes the set of companies not yet in
// the target collection and, if that set is non-empty, commits a new job row
// and schedules the background insert. The returned job is already durable
// when CreateJob returns, so a poll can never race ahead of creation.
// A nil job with nil error means the diff was empty and nothing was created.
func (s *Service) CreateJob(ctx context.Context, collectionID string, req AddRequest) (*job.BulkAddJob, error) {
	target, err := s.catalog.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("get target collection: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collectionID)
	}

	diff, err := s.computeDiff(ctx, collectionID, req)
	if err != nil {
		return nil, err
	}
	if len(diff) == 0 {
		return nil, nil
	}

	j, err := s.ledger.CreateJob(ctx, len(diff))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.IncJobCreated()

	if err := s.runner.Schedule(Task{JobID: j.ID, CollectionID: collectionID, CompanyIDs: diff}); err != nil {
		// The row exists but no worker will ever pick it up; fail it rather
		// than leaving a job stuck in_progress forever.
		if failErr := s.ledger.MarkJobFailed(ctx, j.ID); failErr != nil {
			return nil, fmt.Errorf("schedule job %d: %w (mark failed: %v)", j.ID, err, failErr)
		}
		return nil, fmt.Errorf("schedule job %d: %w", j.ID, err)
	}
	return j, nil
}

// Job returns the current ledger snapshot of one job.
func (s *Service) Job(ctx context.Context, id int64) (*job.BulkAddJob, error) {
	j, err := s.ledger.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if j == nil {
		return nil, fmt.Errorf("%w: job %d", ErrNotFound, id)
	}
	return j, nil
}

// Jobs returns every ledger entry.
func (s *Service) Jobs(ctx context.Context) ([]*job.BulkAddJob, error) {
	return s.ledger.ListJobs(ctx)
}

// Cancel requests cancellation of an in-progress job. The running worker
// observes the cancelled status before its next insert; at most one more
// association can land after Cancel returns.
func (s *Service) Cancel(ctx context.Context, id int64) (*job.BulkAddJob, error) {
	j, err := s.ledger.CancelJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, fmt.Errorf("%w: job %d", ErrNotFound, id)
	}
	return j, nil
}
