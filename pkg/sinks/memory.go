// Package sinks provides record-batch consumers for the pipeline.
// The activity-graph builder plugs in behind pipeline.Sink; the memory sink
// here collects batches in-process for tests and direct embedding.
package sinks

import (
	"context"
	"sync"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
)

// MemorySink collects record batches in memory, in emission order.
type MemorySink struct {
	mu      sync.Mutex
	batches []*model.RecordBatch
	closed  bool
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name returns the sink identifier.
func (s *MemorySink) Name() string { return "memory" }

// Write consumes batches until the input channel closes.
func (s *MemorySink) Write(ctx context.Context, in <-chan *model.RecordBatch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-in:
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.batches = append(s.batches, batch)
			s.mu.Unlock()
		}
	}
}

// Close marks the sink closed.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Batches returns all collected batches in emission order.
func (s *MemorySink) Batches() []*model.RecordBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RecordBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Records returns every collected weighted record, flattened in emission
// order.
func (s *MemorySink) Records() []model.WeightedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WeightedRecord
	for _, b := range s.batches {
		out = append(out, b.Records...)
	}
	return out
}

// RecordsAt returns the log records collected for one epoch.
func (s *MemorySink) RecordsAt(epoch model.Epoch) []model.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LogRecord
	for _, b := range s.batches {
		if b.Epoch != epoch {
			continue
		}
		for _, wr := range b.Records {
			out = append(out, wr.Record)
		}
	}
	return out
}

var _ pipeline.Sink = (*MemorySink)(nil)
