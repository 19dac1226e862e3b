package flowtrace_test

import (
	"context"
	"testing"

	"github.com/flowtrace/flowtrace"
	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/config"
	"github.com/flowtrace/flowtrace/pkg/hooks"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
	"github.com/flowtrace/flowtrace/pkg/sources"
)

func TestSimplifyDataMessageExchange(t *testing.T) {
	// Worker 0 sends a data message to worker 1 in epoch 5; both sides
	// instrument their half of the exchange.
	workers := []pipeline.Source{
		sources.NewMemorySource(0, []*model.TraceMessage{
			sources.Events(0, 5,
				model.RawEvent{Timestamp: 100, WorkerID: 0, Payload: model.Messages{Source: 0, Target: 1, IsSend: true, SeqNo: 7, Channel: 3}},
			),
			sources.Frontier(0, 6),
		}),
		sources.NewMemorySource(1, []*model.TraceMessage{
			sources.Events(1, 5,
				model.RawEvent{Timestamp: 140, WorkerID: 1, Payload: model.Messages{Source: 0, Target: 1, IsSend: false, SeqNo: 7, Channel: 3}},
			),
			sources.Frontier(1, 6),
		}),
	}

	sink, err := flowtrace.SimplifyToMemory(context.Background(), workers, flowtrace.WithConfig(config.Default()))
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}

	records := sink.RecordsAt(5)
	if len(records) != 2 {
		t.Fatalf("expected exactly 2 records at epoch 5, got %d", len(records))
	}
	for _, r := range records {
		if r.ActivityType != model.DataMessage {
			t.Errorf("expected data message, got %s", r.ActivityType)
		}
		if r.CorrelatorID == nil || *r.CorrelatorID != 7 {
			t.Errorf("expected correlator 7: %+v", r)
		}
		if r.ChannelID == nil || *r.ChannelID != 3 {
			t.Errorf("expected channel 3: %+v", r)
		}
		if r.Timestamp != 5 {
			t.Errorf("expected epoch-bucketed timestamp 5, got %s", r.Timestamp)
		}
		switch r.EventType {
		case model.Sent:
			if r.LocalWorker != 0 || *r.RemoteWorker != 1 {
				t.Errorf("unexpected send endpoints: %+v", r)
			}
		case model.Received:
			if r.LocalWorker != 1 || *r.RemoteWorker != 0 {
				t.Errorf("unexpected receive endpoints: %+v", r)
			}
		default:
			t.Errorf("unexpected event type %s", r.EventType)
		}
	}
}

func TestSimplifyPeelsWrapperOperators(t *testing.T) {
	// Bootstrap topology: root scope 0 wraps subgraph 1 wraps leaf 2. The
	// scheduling records of the two wrappers are structural noise.
	bootstrap := []model.RawEvent{
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{}, OperatorID: 0}},
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{0}, OperatorID: 1}},
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{0, 1}, OperatorID: 2}},
	}
	var work []model.RawEvent
	for _, id := range []uint64{0, 1, 2} {
		work = append(work,
			model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: id, Start: true}},
			model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: id, Start: false}},
		)
	}

	workers := []pipeline.Source{
		sources.NewMemorySource(0, []*model.TraceMessage{
			sources.Events(0, 1, bootstrap...),
			sources.Frontier(0, 2),
			sources.Events(0, 2, work...),
			sources.Frontier(0, 3),
		}),
	}

	sink, err := flowtrace.SimplifyToMemory(context.Background(), workers, flowtrace.WithConfig(config.Default()))
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}

	records := sink.RecordsAt(2)
	if len(records) != 2 {
		t.Fatalf("expected only the leaf operator's start/end, got %d records", len(records))
	}
	for _, r := range records {
		if r.OperatorID == nil || *r.OperatorID != 2 {
			t.Errorf("wrapper operator record survived peeling: %+v", r)
		}
	}
}

func TestSimplifyFlushesOnTermination(t *testing.T) {
	// No explicit frontier at all: termination must still flush the epoch.
	workers := []pipeline.Source{
		sources.NewMemorySource(0, []*model.TraceMessage{
			sources.Events(0, 3,
				model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: 1, Start: true}},
			),
		}),
	}

	sink, err := flowtrace.SimplifyToMemory(context.Background(), workers, flowtrace.WithConfig(config.Default()))
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}

	if records := sink.RecordsAt(3); len(records) != 1 {
		t.Fatalf("expected retained epoch flushed on termination, got %d records", len(records))
	}
}

func TestSimplifyTracksProgress(t *testing.T) {
	tracker := hooks.NewProgressTracker(1, nil)

	bootstrap := []model.RawEvent{
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{}, OperatorID: 0}},
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{0}, OperatorID: 1}},
		{WorkerID: 0, Payload: model.Operates{Address: model.OperatorAddress{0, 1}, OperatorID: 2}},
	}
	var work []model.RawEvent
	for _, id := range []uint64{0, 1, 2} {
		work = append(work,
			model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: id, Start: true}},
			model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: id, Start: false}},
		)
	}

	workers := []pipeline.Source{
		sources.NewMemorySource(0, []*model.TraceMessage{
			sources.Events(0, 1, bootstrap...),
			sources.Frontier(0, 2),
			sources.Events(0, 2, work...),
			sources.Frontier(0, 3),
		}),
	}

	_, err := flowtrace.SimplifyToMemory(context.Background(), workers,
		flowtrace.WithConfig(config.Default()), flowtrace.WithProgress(tracker))
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}

	got := tracker.GetProgress()
	if got.EventsRead != 9 {
		t.Errorf("expected 9 events read, got %d", got.EventsRead)
	}
	if got.RecordsEmitted != 6 {
		t.Errorf("expected 6 records emitted, got %d", got.RecordsEmitted)
	}
	if got.RecordsPeeled != 4 {
		t.Errorf("expected 4 wrapper records peeled, got %d", got.RecordsPeeled)
	}
	if got.EpochsFlushed != 2 {
		t.Errorf("expected 2 epochs flushed, got %d", got.EpochsFlushed)
	}
	if got.Violations != 0 {
		t.Errorf("expected no violations, got %d", got.Violations)
	}
}

func TestSimplifyRunsHooks(t *testing.T) {
	m := hooks.NewManager()
	var flushed []model.Epoch
	m.RegisterEpochFlushed(func(epoch model.Epoch, records int) {
		flushed = append(flushed, epoch)
	})
	closed := false
	m.RegisterStreamClosed(func(epochsFlushed int) { closed = true })

	workers := []pipeline.Source{
		sources.NewMemorySource(0, []*model.TraceMessage{
			sources.Events(0, 1,
				model.RawEvent{WorkerID: 0, Payload: model.Schedule{OperatorID: 1, Start: true}},
			),
			sources.Frontier(0, 2),
		}),
	}

	_, err := flowtrace.SimplifyToMemory(context.Background(), workers,
		flowtrace.WithConfig(config.Default()), flowtrace.WithHooks(m))
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}

	if len(flushed) != 1 || flushed[0] != 1 {
		t.Errorf("expected epoch 1 flush reported, got %v", flushed)
	}
	if !closed {
		t.Error("expected stream-closed hook to run")
	}
}
