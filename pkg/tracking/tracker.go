package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

// Tracker brackets engine runs with store updates. It implements the
// engine.Tracker interface: StartRun creates or resumes a run record and
// EndRun moves it to its terminal status. Each bracket call also appends
// an event to the run's log.
type Tracker struct {
	store      Store
	logger     zerolog.Logger
	experiment string
	parameters string

	runID string
}

// TrackerConfig holds the run metadata recorded alongside the bracket.
type TrackerConfig struct {
	// Experiment is a human-readable name for the experiment description.
	Experiment string

	// Parameters is the JSON encoding of the reconciled global parameters.
	// Empty means "{}".
	Parameters string

	Logger zerolog.Logger
}

// NewTracker creates a tracker backed by the given store. The store must
// already be initialized and migrated.
func NewTracker(store Store, cfg TrackerConfig) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("tracking store is required")
	}
	params := cfg.Parameters
	if params == "" {
		params = "{}"
	}
	return &Tracker{
		store:      store,
		logger:     cfg.Logger,
		experiment: cfg.Experiment,
		parameters: params,
	}, nil
}

// RunID returns the id of the run started by the last StartRun call.
func (t *Tracker) RunID() string {
	return t.runID
}

// StartRun creates a new run record, or resumes the run named by resumeID.
func (t *Tracker) StartRun(ctx context.Context, resumeID *string) (string, error) {
	if resumeID != nil {
		run, err := t.store.GetRun(ctx, *resumeID)
		if err != nil {
			return "", fmt.Errorf("cannot resume run: %w", err)
		}
		if err := t.store.MarkRunResumed(ctx, run.ID); err != nil {
			return "", err
		}
		t.runID = run.ID
		t.appendEvent(ctx, EventLevelInfo, "run resumed")
		return run.ID, nil
	}

	now := time.Now()
	run := &Run{
		ID:         uuid.NewString(),
		Experiment: t.experiment,
		Status:     RunStatusRunning,
		Parameters: t.parameters,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	t.runID = run.ID
	t.appendEvent(ctx, EventLevelInfo, "run started")
	return run.ID, nil
}

// EndRun moves the current run to its terminal status.
func (t *Tracker) EndRun(ctx context.Context, status engine.TrackingStatus) error {
	if t.runID == "" {
		return fmt.Errorf("no run in progress")
	}

	runStatus := RunStatusCompleted
	level := EventLevelInfo
	if status == engine.TrackingFailed {
		runStatus = RunStatusFailed
		level = EventLevelError
	}
	if err := t.store.UpdateRunStatus(ctx, t.runID, runStatus, nil); err != nil {
		return err
	}
	t.appendEvent(ctx, level, "run "+string(runStatus))
	return nil
}

// appendEvent logs the event to the store, warning instead of failing the
// run when the write does not go through.
func (t *Tracker) appendEvent(ctx context.Context, level EventLevel, message string) {
	event := &Event{
		RunID:     t.runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := t.store.AppendEvent(ctx, event); err != nil {
		t.logger.Warn().Err(err).Str("run_id", t.runID).Msg("Failed to append tracking event")
	}
}
