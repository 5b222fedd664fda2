package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/testsupport"
)

func TestCreateUpdateGet(t *testing.T) {
	store := testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
	ctx := context.Background()

	run, err := store.Create(ctx, "session-a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.ID == 0 || run.State != jobs.StateIdle || run.CreatedAt.IsZero() {
		t.Fatalf("unexpected new run %#v", run)
	}

	run.State = jobs.StateCompleted
	run.PlanCase = "decimate"
	run.KeepEveryN = 8
	run.OutputFPS = 30
	run.FramesCaptured = 7200
	run.FramesDropped = 3
	run.RecordingSeconds = 240
	run.OutputSeconds = 30
	run.Progress = 100
	run.ArtifactPath = "/tmp/out.mp4"
	run.StoreMode = "durable"
	if err := store.Update(ctx, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.State != jobs.StateCompleted || fetched.KeepEveryN != 8 || fetched.FramesCaptured != 7200 ||
		fetched.FramesDropped != 3 || fetched.ArtifactPath != "/tmp/out.mp4" || fetched.DownloadURL != "" {
		t.Fatalf("unexpected fetched run %#v", fetched)
	}

	missing, err := store.Get(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %#v, %v", missing, err)
	}
}

func TestCreateRequiresSession(t *testing.T) {
	store := testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
	if _, err := store.Create(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestListFilterAndSummary(t *testing.T) {
	store := testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
	ctx := context.Background()
	states := []jobs.State{jobs.StateCompleted, jobs.StateFailed, jobs.StateCapturing, jobs.StateCancelled, jobs.StateCompleted}
	for i, state := range states {
		run, err := store.Create(ctx, "s"+string(rune('a'+i)))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		run.State = state
		if err := store.Update(ctx, run); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("List all = %d, %v", len(all), err)
	}
	if all[0].SessionID != "se" {
		t.Fatalf("expected newest first, got %s", all[0].SessionID)
	}
	limited, err := store.List(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("List limited = %d, %v", len(limited), err)
	}
	completed, err := store.List(ctx, 0, jobs.StateCompleted)
	if err != nil || len(completed) != 2 {
		t.Fatalf("List completed = %d, %v", len(completed), err)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := jobs.Summary{Total: 5, Active: 1, Completed: 2, Failed: 1, Cancelled: 1}
	if summary != want {
		t.Fatalf("Summary = %+v, want %+v", summary, want)
	}

	cleared, err := store.ClearFinished(ctx)
	if err != nil || cleared != 3 {
		t.Fatalf("ClearFinished = %d, %v", cleared, err)
	}
}

func TestMarkInterrupted(t *testing.T) {
	store := testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
	ctx := context.Background()
	active, _ := store.Create(ctx, "active")
	active.State = jobs.StatePolling
	if err := store.Update(ctx, active); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done, _ := store.Create(ctx, "done")
	done.State = jobs.StateCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	got, _ := store.Get(ctx, active.ID)
	if got.State != jobs.StateFailed || got.Reason != jobs.InterruptedReason {
		t.Fatalf("unexpected interrupted run %#v", got)
	}
	got, _ = store.Get(ctx, done.ID)
	if got.State != jobs.StateCompleted {
		t.Fatalf("completed run touched: %#v", got)
	}
}

func TestRemove(t *testing.T) {
	store := testsupport.MustOpenJobs(t, testsupport.NewConfig(t))
	ctx := context.Background()
	run, _ := store.Create(ctx, "gone")
	removed, err := store.Remove(ctx, run.ID)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = store.Remove(ctx, run.ID)
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := first.Create(context.Background(), "persisted"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	first.Close()

	second := testsupport.MustOpenJobs(t, cfg)
	runs, err := second.List(context.Background(), 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("List after reopen = %d, %v", len(runs), err)
	}
	if errors.Is(err, jobs.ErrSchemaMismatch) {
		t.Fatal("unexpected schema mismatch")
	}
}

func TestStateHelpers(t *testing.T) {
	if !jobs.StateCancelled.Terminal() || jobs.StatePolling.Terminal() {
		t.Fatal("Terminal mismatch")
	}
	if state, ok := jobs.ParseState(" Completed "); !ok || state != jobs.StateCompleted {
		t.Fatalf("ParseState = %q, %v", state, ok)
	}
	if _, ok := jobs.ParseState("bogus"); ok {
		t.Fatal("ParseState accepted bogus state")
	}
	if len(jobs.AllStates()) != 9 {
		t.Fatalf("AllStates = %v", jobs.AllStates())
	}
}
