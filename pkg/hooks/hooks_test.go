package hooks

import (
	"errors"
	"testing"

	"github.com/flowtrace/flowtrace/internal/model"
)

func TestManagerEpochFlushedHooks(t *testing.T) {
	mgr := NewManager()

	var called1, called2 bool
	mgr.RegisterEpochFlushed(func(epoch model.Epoch, records int) { called1 = true })
	mgr.RegisterEpochFlushed(func(epoch model.Epoch, records int) { called2 = true })

	mgr.RunEpochFlushed(3, 10)
	if !called1 || !called2 {
		t.Error("not all hooks were called")
	}
}

func TestManagerViolationHook(t *testing.T) {
	mgr := NewManager()

	var gotEpoch model.Epoch
	var gotErr error
	mgr.RegisterViolation(func(decl model.OperatorDecl, epoch model.Epoch, err error) {
		gotEpoch = epoch
		gotErr = err
	})

	want := errors.New("late declaration")
	mgr.RunViolation(model.OperatorDecl{OperatorID: 4}, 7, want)

	if gotEpoch != 7 || !errors.Is(gotErr, want) {
		t.Errorf("hook received epoch=%s err=%v", gotEpoch, gotErr)
	}
}

func TestManagerClear(t *testing.T) {
	mgr := NewManager()

	called := false
	mgr.RegisterStreamClosed(func(epochsFlushed int) { called = true })
	mgr.Clear()
	mgr.RunStreamClosed(1)

	if called {
		t.Error("cleared hook was called")
	}
}

func TestProgressTrackerReportsAtInterval(t *testing.T) {
	var reports []Progress
	tracker := NewProgressTracker(2, func(p Progress) { reports = append(reports, p) })

	tracker.AddEvents(5)
	tracker.AddRecords(3)
	tracker.AddPeeled(1)
	tracker.AddViolation()

	tracker.EpochFlushed()
	if len(reports) != 0 {
		t.Fatal("reported before the interval elapsed")
	}
	tracker.EpochFlushed()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report after 2 epochs, got %d", len(reports))
	}

	got := tracker.GetProgress()
	if got.EventsRead != 5 || got.RecordsEmitted != 3 || got.RecordsPeeled != 1 || got.Violations != 1 || got.EpochsFlushed != 2 {
		t.Errorf("unexpected progress: %+v", got)
	}
}
