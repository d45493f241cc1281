package scan

import (
	"context"
	"time"
)

// Status is the terminal state of a scan run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run describes a scan as it starts.
type Run struct {
	Library      string
	Directory    string
	DatabaseFile string
	TriggeredBy  string
	StartedAt    time.Time
}

// Recorder persists scan runs. BeginRun returns a non-zero run ID.
type Recorder interface {
	BeginRun(ctx context.Context, run Run) (int64, error)
	FinishRun(ctx context.Context, id int64, status Status, finishedAt time.Time, res Result, runErr error) error
}
