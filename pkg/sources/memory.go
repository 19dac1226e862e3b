// Package sources provides trace stream sources for the pipeline.
// The live-socket and file replay adapters live outside this core; what
// ships here is the in-memory replayer used by tests and by embedders that
// already hold framed events.
package sources

import (
	"context"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
)

// MemorySource replays a scripted sequence of trace messages for one worker.
type MemorySource struct {
	worker   uint64
	messages []*model.TraceMessage
}

// NewMemorySource creates a source that replays messages in order for the
// given worker.
func NewMemorySource(worker uint64, messages []*model.TraceMessage) *MemorySource {
	return &MemorySource{
		worker:   worker,
		messages: messages,
	}
}

// Name returns the source identifier.
func (s *MemorySource) Name() string { return "memory" }

// Worker returns the worker id this source replays.
func (s *MemorySource) Worker() uint64 { return s.worker }

// Read emits the scripted messages in order.
func (s *MemorySource) Read(ctx context.Context, out chan<- *model.TraceMessage) error {
	for _, msg := range s.messages {
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ pipeline.Source = (*MemorySource)(nil)

// --- Script helpers ---

// Events builds a trace message carrying raw events at one epoch.
func Events(worker uint64, epoch model.Epoch, events ...model.RawEvent) *model.TraceMessage {
	return &model.TraceMessage{
		Worker: worker,
		Epoch:  epoch,
		Events: events,
	}
}

// Frontier builds a watermark-only trace message: the worker guarantees no
// further events below epoch.
func Frontier(worker uint64, epoch model.Epoch) *model.TraceMessage {
	return &model.TraceMessage{
		Worker:      worker,
		Frontier:    epoch,
		HasFrontier: true,
	}
}
