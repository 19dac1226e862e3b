// Package pipeline defines the stream-operator pipeline that turns replayed
// instrumentation traces into simplified causal record collections.
// Data flows: per-worker Sources -> Classifier -> Operators -> Sink, with
// one buffered channel per stage and watermark-driven emission.
package pipeline

import (
	"context"

	"github.com/flowtrace/flowtrace/internal/model"
)

// Source replays one observed worker's instrumentation stream. The trace
// source adapter (live socket or serialized file) implements this; the core
// is agnostic to which. Sources must emit messages in logical-time order for
// their worker and must close out by returning, not by closing the channel
// (the orchestrator owns channel lifecycle).
type Source interface {
	// Name returns the source identifier (e.g., "memory", "tcp", "file").
	Name() string

	// Worker returns the id of the worker this source replays.
	Worker() uint64

	// Read emits trace messages to the output channel until the stream ends
	// or ctx is canceled.
	Read(ctx context.Context, out chan<- *model.TraceMessage) error
}

// Classifier converts the merged raw-event stream into epoch-batched
// weighted record output. Runs as a single logical operator: one goroutine,
// no shared state.
type Classifier interface {
	// Name returns the classifier identifier.
	Name() string

	// Process reads trace messages, classifies them, and emits record
	// batches as watermarks advance. Must flush all retained epochs when the
	// input channel closes. The orchestrator closes the output channel.
	Process(ctx context.Context, in <-chan *model.TraceMessage, out chan<- *model.RecordBatch) error
}

// Operator transforms an epoch-batched record stream. Operators may drop
// records (by omission) but never re-order batches across epochs.
type Operator interface {
	// Name returns the operator identifier (e.g., "peel").
	Name() string

	// Process reads batches from in, transforms, and writes to out.
	// The orchestrator closes the output channel.
	Process(ctx context.Context, in <-chan *model.RecordBatch, out chan<- *model.RecordBatch) error
}

// Sink consumes the simplified record collection. The activity-graph builder
// sits behind this seam.
type Sink interface {
	// Name returns the sink identifier.
	Name() string

	// Write consumes batches until the input channel closes.
	Write(ctx context.Context, in <-chan *model.RecordBatch) error

	// Close flushes and closes the sink.
	Close() error
}

// OperatorFunc is a function type that implements Operator.
// Useful for simple inline operators.
type OperatorFunc func(ctx context.Context, in <-chan *model.RecordBatch, out chan<- *model.RecordBatch) error

// Process implements Operator.
func (f OperatorFunc) Process(ctx context.Context, in <-chan *model.RecordBatch, out chan<- *model.RecordBatch) error {
	return f(ctx, in, out)
}

// Name returns "func" for anonymous operators.
func (f OperatorFunc) Name() string {
	return "func"
}
