package tracking

import (
	"context"
	"time"
)

// RunStatus represents the status of a tracked experiment run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EventLevel represents the severity level of a run event
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents a tracked experiment run
type Run struct {
	ID           string     `json:"id"`
	Experiment   string     `json:"experiment"`
	Status       RunStatus  `json:"status"`
	Parameters   string     `json:"parameters"` // JSON blob of global parameters
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	ResumedCount int        `json:"resumed_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event represents an append-only run event
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Step      *string    `json:"step,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the tracking persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	MarkRunResumed(ctx context.Context, id string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
