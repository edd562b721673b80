package store

import (
	"context"
	"errors"

	"github.com/jamhq/jam/internal/job"
)

// ErrJobNotCancellable is returned by CancelJob when the job exists but is no
// longer in progress. Only in-progress jobs accept a cancellation request.
var ErrJobNotCancellable = errors.New("job is not in progress")

// Company is a single company record. Liked reports membership in the liked
// collection and is only populated by CollectionPage.
type Company struct {
	ID    int64  `json:"id"`
	Name  string `json:"company_name"`
	Liked bool   `json:"liked"`
}

// Collection is the metadata of one company collection.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"collection_name"`
}

// Catalog reads companies, collections and their associations.
type Catalog interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	// GetCollection returns nil (no error) when the id is unknown.
	GetCollection(ctx context.Context, id string) (*Collection, error)
	// CollectionPage returns one page of a collection's companies ordered by
	// company id, each annotated with liked status, plus the total member count.
	CollectionPage(ctx context.Context, id string, offset, limit int) ([]Company, int, error)
	// MissingCompanyIDs returns the subset of ids that reference no company.
	MissingCompanyIDs(ctx context.Context, ids []int64) ([]int64, error)
	// AssociatedCompanyIDs returns every company id in the collection, ascending.
	AssociatedCompanyIDs(ctx context.Context, collectionID string) ([]int64, error)
	// AssociatedCompanyIDsAmong restricts the lookup to the given candidate ids.
	AssociatedCompanyIDsAmong(ctx context.Context, collectionID string, ids []int64) ([]int64, error)
}

// Ledger persists bulk-add jobs. It is the single source of truth for whether
// a job is still runnable: the worker and the cancel endpoint coordinate only
// through the durable job row, never through in-memory state.
type Ledger interface {
	// CreateJob commits a new in-progress job row and returns it with its
	// ledger-assigned id. The row is durable before CreateJob returns.
	CreateJob(ctx context.Context, total int) (*job.BulkAddJob, error)
	// GetJob returns nil (no error) when the id is unknown.
	GetJob(ctx context.Context, id int64) (*job.BulkAddJob, error)
	ListJobs(ctx context.Context) ([]*job.BulkAddJob, error)
	// JobStatus re-reads the current status of a job. The worker calls this
	// before every insert; callers must not cache the result across inserts.
	JobStatus(ctx context.Context, id int64) (job.Status, error)
	// CancelJob atomically moves an in-progress job to cancelled and returns
	// the updated row. Unknown id yields (nil, nil); a job in any other state
	// yields ErrJobNotCancellable and no mutation.
	CancelJob(ctx context.Context, id int64) (*job.BulkAddJob, error)
	// MarkJobFailed moves a job to failed, but only from in_progress so a
	// concurrent cancellation is never overwritten.
	MarkJobFailed(ctx context.Context, id int64) error
	// InsertPair inserts one (company, collection) association and advances the
	// job's added counter in a single transaction, flipping the job to
	// completed when the last pair lands. A unique-constraint conflict on the
	// association is treated as already-present: the insert is skipped but the
	// counter still advances.
	InsertPair(ctx context.Context, jobID, companyID int64, collectionID string) error
}
