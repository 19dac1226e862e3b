// Package classify implements the event classifier: the stream operator
// that converts raw instrumentation events into canonical causal records,
// batched per epoch and released only once the watermark guarantees the
// epoch complete.
package classify

import (
	"context"
	"log"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/hooks"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
	"github.com/flowtrace/flowtrace/pkg/telemetry"
)

// Classifier is a stateful, epoch-batched, single-pass operator. It retains
// an accumulator per epoch from the first event observed for that epoch and
// holds it until the global watermark passes the epoch, then flushes.
//
// All records classified from one epoch carry that epoch's time, not each
// event's own timestamp: downstream relational stages operate over
// epoch-keyed collections.
type Classifier struct {
	frontier *pipeline.Frontier
	hooks    *hooks.Manager

	// Metrics
	eventsIn         int64
	recordsOut       int64
	selfLoopsDropped int64
	localProgress    int64
	ignoredEvents    int64
	regressedEvents  int64
	epochsFlushed    int64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHooks attaches a hook manager notified per flushed epoch.
func WithHooks(m *hooks.Manager) Option {
	return func(c *Classifier) { c.hooks = m }
}

// NewClassifier creates a classifier for a computation observed across
// numWorkers workers.
func NewClassifier(numWorkers int, opts ...Option) *Classifier {
	c := &Classifier{
		frontier: pipeline.NewFrontier(numWorkers),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the classifier identifier.
func (c *Classifier) Name() string { return "classify" }

// pendingEpoch is the retained accumulator for one incomplete epoch.
type pendingEpoch struct {
	records []model.WeightedRecord
	decls   []model.OperatorDecl
}

// Process consumes the merged per-worker trace stream and emits one record
// batch per completed epoch, in ascending epoch order. When the input
// channel closes, every retained epoch is flushed; no partial-epoch data is
// discarded.
func (c *Classifier) Process(ctx context.Context, in <-chan *model.TraceMessage, out chan<- *model.RecordBatch) error {
	pending := make(map[model.Epoch]*pendingEpoch)

	for {
		var msg *model.TraceMessage
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok = <-in:
			if !ok {
				return c.drain(ctx, pending, out)
			}
		}

		if len(msg.Events) > 0 {
			c.ingest(msg, pending)
		}

		if msg.HasFrontier {
			watermark, advanced := c.frontier.Advance(msg.Worker, msg.Frontier)
			if !advanced {
				continue
			}
			if err := c.flush(ctx, pending, out, watermark); err != nil {
				return err
			}
		}
	}
}

// ingest classifies one message's events into the epoch's accumulator.
func (c *Classifier) ingest(msg *model.TraceMessage, pending map[model.Epoch]*pendingEpoch) {
	if msg.Epoch < c.frontier.Watermark() {
		// The watermark already guaranteed this epoch complete; the source
		// violated its ordering contract. Drop, don't corrupt emitted epochs.
		atomic.AddInt64(&c.regressedEvents, int64(len(msg.Events)))
		log.Printf("classify: dropping %d events for completed epoch %s (watermark %s, worker %d)",
			len(msg.Events), msg.Epoch, c.frontier.Watermark(), msg.Worker)
		return
	}

	p := pending[msg.Epoch]
	if p == nil {
		p = &pendingEpoch{}
		pending[msg.Epoch] = p
	}

	for _, ev := range msg.Events {
		atomic.AddInt64(&c.eventsIn, 1)

		if op, ok := ev.Payload.(model.Operates); ok {
			// Topology declarations never become records; they are routed
			// downstream tagged with the epoch they arrived in, so the
			// peeler can enforce the bootstrap-epoch restriction.
			p.decls = append(p.decls, model.OperatorDecl{
				Address:    op.Address,
				OperatorID: op.OperatorID,
			})
			continue
		}

		record, ok := c.classify(ev, msg.Epoch)
		if !ok {
			continue
		}
		p.records = append(p.records, model.WeightedRecord{Record: record, Diff: 1})
		atomic.AddInt64(&c.recordsOut, 1)
	}
}

// classify applies the per-event-kind correlation rules. Returns false for
// events that are dropped or not understood.
func (c *Classifier) classify(ev model.RawEvent, epoch model.Epoch) (model.LogRecord, bool) {
	switch p := ev.Payload.(type) {
	case model.Schedule:
		eventType := model.End
		if p.Start {
			eventType = model.Start
		}
		return model.LogRecord{
			Timestamp:    epoch,
			LocalWorker:  ev.WorkerID,
			ActivityType: model.Scheduling,
			EventType:    eventType,
			OperatorID:   model.Uint64(p.OperatorID),
		}, true

	case model.Messages:
		// Self-loop data messages are not causally interesting.
		if p.Source == p.Target {
			atomic.AddInt64(&c.selfLoopsDropped, 1)
			return model.LogRecord{}, false
		}

		eventType := model.Received
		remote := p.Source
		if p.IsSend {
			eventType = model.Sent
			remote = p.Target
		}
		return model.LogRecord{
			Timestamp:    epoch,
			LocalWorker:  ev.WorkerID,
			ActivityType: model.DataMessage,
			EventType:    eventType,
			CorrelatorID: model.Uint64(p.SeqNo),
			RemoteWorker: model.Uint64(remote),
			ChannelID:    model.Uint64(p.Channel),
		}, true

	case model.Progress:
		// Locally-looped progress updates are dropped.
		if !p.IsSend && p.Source == ev.WorkerID {
			atomic.AddInt64(&c.localProgress, 1)
			return model.LogRecord{}, false
		}

		eventType := model.Received
		// Outgoing progress messages are broadcasts; the recipient is not
		// knowable at send time.
		var remote *uint64
		if p.IsSend {
			eventType = model.Sent
		} else {
			remote = model.Uint64(p.Source)
		}
		return model.LogRecord{
			Timestamp:    epoch,
			LocalWorker:  ev.WorkerID,
			ActivityType: model.ControlMessage,
			EventType:    eventType,
			CorrelatorID: model.Uint64(p.SeqNo),
			RemoteWorker: remote,
			ChannelID:    model.Uint64(p.Channel),
		}, true

	default:
		// Diagnostic kinds irrelevant to causal analysis.
		atomic.AddInt64(&c.ignoredEvents, 1)
		return model.LogRecord{}, false
	}
}

// flush emits every retained epoch strictly below the watermark, in
// ascending order. If nothing was pending, a watermark-only batch is emitted
// so downstream stages still observe the advance.
func (c *Classifier) flush(ctx context.Context, pending map[model.Epoch]*pendingEpoch, out chan<- *model.RecordBatch, watermark model.Epoch) error {
	ready := make([]model.Epoch, 0, len(pending))
	for epoch := range pending {
		if epoch < watermark {
			ready = append(ready, epoch)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	if len(ready) == 0 {
		return c.emit(ctx, out, &model.RecordBatch{Watermark: watermark})
	}

	for _, epoch := range ready {
		p := pending[epoch]
		batch := &model.RecordBatch{
			Epoch:     epoch,
			Records:   p.records,
			Decls:     p.decls,
			Watermark: watermark,
		}
		if err := c.emit(ctx, out, batch); err != nil {
			return err
		}
		delete(pending, epoch)

		atomic.AddInt64(&c.epochsFlushed, 1)
		telemetry.AddSpanEvent(ctx, "epoch.flushed",
			attribute.Int64("epoch", int64(epoch)),
			attribute.Int("records", len(batch.Records)),
		)
		if c.hooks != nil {
			c.hooks.RunEpochFlushed(epoch, len(batch.Records))
		}
	}
	return nil
}

// drain flushes all retained epochs on stream termination.
func (c *Classifier) drain(ctx context.Context, pending map[model.Epoch]*pendingEpoch, out chan<- *model.RecordBatch) error {
	flushed := int(atomic.LoadInt64(&c.epochsFlushed))
	if err := c.flush(ctx, pending, out, model.WatermarkClosed); err != nil {
		return err
	}
	telemetry.SetSpanAttributes(ctx,
		attribute.Int64("classify.events_in", atomic.LoadInt64(&c.eventsIn)),
		attribute.Int64("classify.records_out", atomic.LoadInt64(&c.recordsOut)),
		attribute.Int64("classify.epochs_flushed", atomic.LoadInt64(&c.epochsFlushed)),
	)
	if c.hooks != nil {
		c.hooks.RunStreamClosed(int(atomic.LoadInt64(&c.epochsFlushed)) - flushed)
	}
	return nil
}

func (c *Classifier) emit(ctx context.Context, out chan<- *model.RecordBatch, batch *model.RecordBatch) error {
	select {
	case out <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of classifier counters.
type Stats struct {
	EventsIn         int64
	RecordsOut       int64
	SelfLoopsDropped int64
	LocalProgress    int64
	IgnoredEvents    int64
	RegressedEvents  int64
	EpochsFlushed    int64
}

// Stats returns current counters.
func (c *Classifier) Stats() Stats {
	return Stats{
		EventsIn:         atomic.LoadInt64(&c.eventsIn),
		RecordsOut:       atomic.LoadInt64(&c.recordsOut),
		SelfLoopsDropped: atomic.LoadInt64(&c.selfLoopsDropped),
		LocalProgress:    atomic.LoadInt64(&c.localProgress),
		IgnoredEvents:    atomic.LoadInt64(&c.ignoredEvents),
		RegressedEvents:  atomic.LoadInt64(&c.regressedEvents),
		EpochsFlushed:    atomic.LoadInt64(&c.epochsFlushed),
	}
}

var _ pipeline.Classifier = (*Classifier)(nil)
