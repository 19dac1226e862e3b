package peel

import (
	"context"
	"log"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/hooks"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
	"github.com/flowtrace/flowtrace/pkg/telemetry"
)

// Peeler is the stream operator that strips encompassing-operator records
// from the classified record stream.
//
// Batches are buffered until the watermark passes the bootstrap epoch: only
// then is the operator topology complete and the peel set final. From that
// point on the peeler is a plain in-stream filter. If the stream terminates
// before the bootstrap epoch completes, the topology is sealed with whatever
// arrived and everything buffered is flushed — no partial-epoch data is
// discarded.
type Peeler struct {
	topology *Topology
	hooks    *hooks.Manager

	// Metrics
	recordsIn  int64
	peeled     int64
	violations int64
}

// Option configures a Peeler.
type Option func(*Peeler)

// WithHooks attaches a hook manager notified on topology violations.
func WithHooks(m *hooks.Manager) Option {
	return func(p *Peeler) { p.hooks = m }
}

// NewPeeler creates a peeler whose topology is declared at the bootstrap
// epoch.
func NewPeeler(bootstrap model.Epoch, opts ...Option) *Peeler {
	p := &Peeler{
		topology: NewTopology(bootstrap),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the operator identifier.
func (p *Peeler) Name() string { return "peel" }

// Topology returns the peeler's operator topology.
func (p *Peeler) Topology() *Topology {
	return p.topology
}

// Process consumes classified record batches and emits them with
// encompassing-operator records removed, never re-ordering across epochs.
func (p *Peeler) Process(ctx context.Context, in <-chan *model.RecordBatch, out chan<- *model.RecordBatch) error {
	var buffered []*model.RecordBatch

	for {
		var batch *model.RecordBatch
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok = <-in:
			if !ok {
				// Stream terminated: seal with what we have and flush.
				p.seal(ctx)
				return p.flush(ctx, buffered, out)
			}
		}

		p.observeDecls(batch)

		if !p.topology.Sealed() && batch.Watermark > p.topology.Bootstrap() {
			p.seal(ctx)
			if err := p.flush(ctx, buffered, out); err != nil {
				return err
			}
			buffered = nil
		}

		if !p.topology.Sealed() {
			buffered = append(buffered, batch)
			continue
		}

		if err := p.emit(ctx, out, p.filter(batch)); err != nil {
			return err
		}
	}
}

// seal fixes the peel set and annotates the run span with its size.
func (p *Peeler) seal(ctx context.Context) {
	p.topology.Seal()
	telemetry.AddSpanEvent(ctx, "topology.sealed",
		attribute.Int("operators", p.topology.Operators()),
		attribute.Int("peeled_operators", len(p.topology.PeelIDs())),
	)
}

// observeDecls feeds the batch's operator declarations into the topology,
// reporting (never propagating) violations.
func (p *Peeler) observeDecls(batch *model.RecordBatch) {
	for _, decl := range batch.Decls {
		if err := p.topology.Observe(decl, batch.Epoch); err != nil {
			atomic.AddInt64(&p.violations, 1)
			log.Printf("peel: rejecting %s: %v", decl, err)
			if p.hooks != nil {
				p.hooks.RunViolation(decl, batch.Epoch, err)
			}
		}
	}
}

// filter applies the antijoin on operator id. Declarations are consumed
// here and not forwarded; downstream consumes records only.
func (p *Peeler) filter(batch *model.RecordBatch) *model.RecordBatch {
	atomic.AddInt64(&p.recordsIn, int64(len(batch.Records)))

	kept, peeled := antiJoin(batch.Records, p.topology.peelIDs)
	atomic.AddInt64(&p.peeled, int64(peeled))

	return &model.RecordBatch{
		Epoch:     batch.Epoch,
		Records:   kept,
		Watermark: batch.Watermark,
	}
}

func (p *Peeler) flush(ctx context.Context, buffered []*model.RecordBatch, out chan<- *model.RecordBatch) error {
	for _, batch := range buffered {
		if err := p.emit(ctx, out, p.filter(batch)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peeler) emit(ctx context.Context, out chan<- *model.RecordBatch, batch *model.RecordBatch) error {
	select {
	case out <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of peeler counters.
type Stats struct {
	RecordsIn  int64
	Peeled     int64
	Violations int64
}

// Stats returns current counters.
func (p *Peeler) Stats() Stats {
	return Stats{
		RecordsIn:  atomic.LoadInt64(&p.recordsIn),
		Peeled:     atomic.LoadInt64(&p.peeled),
		Violations: atomic.LoadInt64(&p.violations),
	}
}

var _ pipeline.Operator = (*Peeler)(nil)
