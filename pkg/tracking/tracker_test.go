package tracking

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/usnistgov/dioptra-sub004/pkg/engine"
)

func setupTestTracker(t *testing.T) (*Tracker, *SQLiteStore) {
	t.Helper()

	store := setupTestStore(t)
	tracker, err := NewTracker(store, TrackerConfig{
		Experiment: "fgm-attack",
		Parameters: `{"eps":0.3}`,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	return tracker, store
}

// TestTrackerNewRun tests the start/end bracket for a fresh run
func TestTrackerNewRun(t *testing.T) {
	tracker, store := setupTestTracker(t)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, nil)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}
	if tracker.RunID() != runID {
		t.Errorf("expected RunID %s, got %s", runID, tracker.RunID())
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected Status %s, got %s", RunStatusRunning, run.Status)
	}
	if run.Experiment != "fgm-attack" {
		t.Errorf("expected experiment name recorded, got %q", run.Experiment)
	}

	if err := tracker.EndRun(ctx, engine.TrackingSuccess); err != nil {
		t.Fatalf("failed to end run: %v", err)
	}

	run, err = store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Errorf("expected Status %s, got %s", RunStatusCompleted, run.Status)
	}

	events, err := store.ListEventsByRun(ctx, runID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected start and end events, got %d", len(events))
	}
}

// TestTrackerFailedRun tests the failure bracket
func TestTrackerFailedRun(t *testing.T) {
	tracker, store := setupTestTracker(t)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, nil)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if err := tracker.EndRun(ctx, engine.TrackingFailed); err != nil {
		t.Fatalf("failed to end run: %v", err)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, run.Status)
	}
}

// TestTrackerResume tests resuming a previously tracked run
func TestTrackerResume(t *testing.T) {
	tracker, store := setupTestTracker(t)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, nil)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if err := tracker.EndRun(ctx, engine.TrackingFailed); err != nil {
		t.Fatalf("failed to end run: %v", err)
	}

	resumedID, err := tracker.StartRun(ctx, &runID)
	if err != nil {
		t.Fatalf("failed to resume run: %v", err)
	}
	if resumedID != runID {
		t.Errorf("expected resumed id %s, got %s", runID, resumedID)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected Status %s, got %s", RunStatusRunning, run.Status)
	}
	if run.ResumedCount != 1 {
		t.Errorf("expected ResumedCount 1, got %d", run.ResumedCount)
	}
}

// TestTrackerResumeUnknownRun tests that resuming a missing run fails
func TestTrackerResumeUnknownRun(t *testing.T) {
	tracker, _ := setupTestTracker(t)
	ctx := context.Background()

	missing := "no-such-run"
	if _, err := tracker.StartRun(ctx, &missing); err == nil {
		t.Error("expected error resuming unknown run")
	}
}

// TestTrackerEndWithoutStart tests that EndRun requires a bracket
func TestTrackerEndWithoutStart(t *testing.T) {
	tracker, _ := setupTestTracker(t)

	if err := tracker.EndRun(context.Background(), engine.TrackingSuccess); err == nil {
		t.Error("expected error ending run without start")
	}
}
