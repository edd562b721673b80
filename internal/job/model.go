package job

import "time"

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true for statuses that represent a final state.
// A job never transitions out of a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BulkAddJob tracks one asynchronous bulk-insert run. Added counts the
// associations committed so far and never exceeds Total, which is fixed at
// creation to the size of the computed diff.
type BulkAddJob struct {
	ID        int64     `json:"id"`
	Status    Status    `json:"status"`
	Added     int       `json:"added"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}
