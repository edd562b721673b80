package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jamhq/jam/internal/job"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Catalog and Ledger.
//
// insertDelay throttles InsertPair to mimic a deliberately slow storage layer;
// it is what makes bulk additions long-running enough to need job tracking.
type SQLiteStore struct {
	db          *sql.DB
	insertDelay time.Duration
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs
// migrations. insertDelay is applied once per InsertPair call; pass 0 to
// disable throttling (tests).
func NewSQLiteStore(dbPath string, insertDelay time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single pooled connection: SQLite allows one writer anyway, and the
	// PRAGMAs below are per-connection (as is an in-memory database).
	db.SetMaxOpenConns(1)

	// WAL mode keeps the frequent per-pair commits cheap.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err = db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, insertDelay: insertDelay}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			setting_name TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS companies (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			company_name TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(company_name);
		CREATE TABLE IF NOT EXISTS company_collections (
			id              TEXT PRIMARY KEY,
			collection_name TEXT NOT NULL,
			created_at      DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS company_collection_associations (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id    INTEGER NOT NULL REFERENCES companies(id),
			collection_id TEXT NOT NULL REFERENCES company_collections(id),
			created_at    DATETIME NOT NULL,
			UNIQUE (company_id, collection_id)
		);
		CREATE INDEX IF NOT EXISTS idx_associations_collection
			ON company_collection_associations(collection_id);
		CREATE TABLE IF NOT EXISTS bulk_add_jobs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			status     TEXT NOT NULL DEFAULT 'in_progress',
			added      INTEGER NOT NULL DEFAULT 0,
			total      INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bulk_add_jobs_status ON bulk_add_jobs(status);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCompany inserts a company and returns it with its assigned id.
func (s *SQLiteStore) CreateCompany(ctx context.Context, name string) (*Company, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (company_name, created_at) VALUES (?, ?)
	`, name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("company insert id: %w", err)
	}
	return &Company{ID: id, Name: name}, nil
}

// CreateCollection inserts a collection with a fresh UUID id.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	c := &Collection{ID: uuid.NewString(), Name: name}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_collections (id, collection_name, created_at) VALUES (?, ?, ?)
	`, c.ID, c.Name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_name FROM company_collections ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return collections, nil
}

func (s *SQLiteStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection_name FROM company_collections WHERE id = ?
	`, id)

	c := &Collection{}
	err := row.Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", id, err)
	}
	return c, nil
}

// CollectionPage returns one page of the collection's members ordered by
// company id. Liked is true when the company also belongs to the liked
// collection (LikedCollectionName).
func (s *SQLiteStore) CollectionPage(ctx context.Context, id string, offset, limit int) ([]Company, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM company_collection_associations WHERE collection_id = ?
	`, id).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count collection members: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.company_name,
		       EXISTS (
		           SELECT 1 FROM company_collection_associations liked
		           WHERE liked.company_id = c.id
		             AND liked.collection_id = (
		                 SELECT id FROM company_collections WHERE collection_name = ?
		             )
		       )
		FROM company_collection_associations a
		JOIN companies c ON c.id = a.company_id
		WHERE a.collection_id = ?
		ORDER BY c.id
		LIMIT ? OFFSET ?
	`, LikedCollectionName, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("collection page: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Liked); err != nil {
			return nil, 0, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, total, nil
}

func (s *SQLiteStore) MissingCompanyIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id FROM companies WHERE id IN (%s)
	`, placeholders(len(ids)))

	rows, err := s.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan company id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company ids: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *SQLiteStore) AssociatedCompanyIDs(ctx context.Context, collectionID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id FROM company_collection_associations
		WHERE collection_id = ?
		ORDER BY company_id
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query associations: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *SQLiteStore) AssociatedCompanyIDsAmong(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT company_id FROM company_collection_associations
		WHERE collection_id = ? AND company_id IN (%s)
		ORDER BY company_id
	`, placeholders(len(ids)))

	args := append([]any{collectionID}, int64Args(ids)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query associations: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, total int) (*job.BulkAddJob, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_add_jobs (status, added, total, created_at) VALUES (?, 0, ?, ?)
	`, job.StatusInProgress, total, now)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job insert id: %w", err)
	}
	return &job.BulkAddJob{ID: id, Status: job.StatusInProgress, Total: total, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*job.BulkAddJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, added, total, created_at FROM bulk_add_jobs WHERE id = ?
	`, id)

	j := &job.BulkAddJob{}
	err := row.Scan(&j.ID, &j.Status, &j.Added, &j.Total, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*job.BulkAddJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, added, total, created_at FROM bulk_add_jobs ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.BulkAddJob
	for rows.Next() {
		j := &job.BulkAddJob{}
		if err := rows.Scan(&j.ID, &j.Status, &j.Added, &j.Total, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) JobStatus(ctx context.Context, id int64) (job.Status, error) {
	var status job.Status
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM bulk_add_jobs WHERE id = ?
	`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("job %d status: %w", id, err)
	}
	return status, nil
}

// CancelJob moves an in-progress job to cancelled in one transaction. The
// running worker observes the new status on its next read-before-insert and
// stops; at most one insert can still land after the cancel commits.
func (s *SQLiteStore) CancelJob(ctx context.Context, id int64) (*job.BulkAddJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback()

	j := &job.BulkAddJob{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, added, total, created_at FROM bulk_add_jobs WHERE id = ?
	`, id).Scan(&j.ID, &j.Status, &j.Added, &j.Total, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}

	if j.Status != job.StatusInProgress {
		return nil, fmt.Errorf("job %d has status %q: %w", id, j.Status, ErrJobNotCancellable)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bulk_add_jobs SET status = ? WHERE id = ?
	`, job.StatusCancelled, id); err != nil {
		return nil, fmt.Errorf("cancel job %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	j.Status = job.StatusCancelled
	return j, nil
}

func (s *SQLiteStore) MarkJobFailed(ctx context.Context, id int64) error {
	// Only in-progress jobs fail; a concurrent cancel must not be overwritten.
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_add_jobs SET status = ? WHERE id = ? AND status = ?
	`, job.StatusFailed, id, job.StatusInProgress)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return nil
}

// InsertPair commits one association together with the job's progress update.
// The one-pair-per-transaction granularity is deliberate: it bounds wasted
// work after a cancellation to a single insert and keeps the added counter
// observable by pollers.
func (s *SQLiteStore) InsertPair(ctx context.Context, jobID, companyID int64, collectionID string) error {
	if s.insertDelay > 0 {
		select {
		case <-time.After(s.insertDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	// OR IGNORE: another job may have inserted the same pair since the diff
	// was computed; already-present pairs are skipped, not fatal.
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO company_collection_associations
			(company_id, collection_id, created_at)
		VALUES (?, ?, ?)
	`, companyID, collectionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert association (%d, %s): %w", companyID, collectionID, err)
	}

	// added still advances for a skipped pair so the job can reach its total.
	// Completion only fires from in_progress; a cancel that won the race keeps
	// its terminal status.
	if _, err := tx.ExecContext(ctx, `
		UPDATE bulk_add_jobs
		SET added = added + 1,
		    status = CASE WHEN added + 1 >= total AND status = ? THEN ? ELSE status END
		WHERE id = ?
	`, job.StatusInProgress, job.StatusCompleted, jobID); err != nil {
		return fmt.Errorf("advance job %d: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan company id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate company ids: %w", err)
	}
	return ids, nil
}
