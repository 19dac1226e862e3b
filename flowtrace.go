// Package flowtrace converts low-level instrumentation traces of a
// distributed dataflow computation into a causally meaningful, deduplicated
// activity record stream for critical-path and straggler analysis.
//
// The pipeline classifies raw per-worker events into canonical causal
// records and strips the structural wrapper operators whose scheduling
// activity is not real work, emitting output per epoch as soon as the
// source's watermarks guarantee completeness.
//
// Basic usage:
//
//	// One source per observed worker, from the trace source adapter.
//	sink := sinks.NewMemorySink()
//	err := flowtrace.Simplify(ctx, workers, sink)
//
//	// Records arrive epoch by epoch; hand them to the graph builder.
//	for _, batch := range sink.Batches() { ... }
package flowtrace

import (
	"context"
	"fmt"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/classify"
	"github.com/flowtrace/flowtrace/pkg/config"
	"github.com/flowtrace/flowtrace/pkg/hooks"
	"github.com/flowtrace/flowtrace/pkg/peel"
	"github.com/flowtrace/flowtrace/pkg/pipeline"
	"github.com/flowtrace/flowtrace/pkg/sinks"
	"github.com/flowtrace/flowtrace/pkg/telemetry"
)

// Options configures a simplification run.
type Options struct {
	// Config overrides the loaded configuration.
	Config *config.Config

	// Hooks observes epoch flushes and topology violations.
	Hooks *hooks.Manager

	// Progress accumulates run counters across both stream operators.
	Progress *hooks.ProgressTracker
}

// Option modifies Options.
type Option func(*Options)

// WithConfig uses cfg instead of the loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) { o.Config = cfg }
}

// WithHooks attaches a hook manager to both stream operators.
func WithHooks(m *hooks.Manager) Option {
	return func(o *Options) { o.Hooks = m }
}

// WithProgress feeds run counters into the tracker: per-epoch flushes and
// violations live during the run, classifier and peeler totals at the end.
func WithProgress(t *hooks.ProgressTracker) Option {
	return func(o *Options) { o.Progress = t }
}

// Simplify runs the full classification and peeling pipeline over the given
// per-worker sources, delivering simplified record batches to the sink as
// watermarks advance. It returns when every source has terminated and all
// retained epochs are flushed, or when ctx is canceled.
func Simplify(ctx context.Context, workers []pipeline.Source, sink pipeline.Sink, opts ...Option) error {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	cfg := options.Config
	if cfg == nil {
		cfg = config.Global().Get()
	}

	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultConfig("flowtrace")
		if cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		shutdown, err := telemetry.Init(otlpCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer shutdown(context.Background())
	}

	hookMgr := options.Hooks
	if options.Progress != nil {
		if hookMgr == nil {
			hookMgr = hooks.NewManager()
		}
		tracker := options.Progress
		hookMgr.RegisterEpochFlushed(func(epoch model.Epoch, records int) {
			tracker.AddRecords(int64(records))
			tracker.EpochFlushed()
		})
		hookMgr.RegisterViolation(func(decl model.OperatorDecl, epoch model.Epoch, err error) {
			tracker.AddViolation()
		})
	}

	var classifierOpts []classify.Option
	var peelerOpts []peel.Option
	if hookMgr != nil {
		classifierOpts = append(classifierOpts, classify.WithHooks(hookMgr))
		peelerOpts = append(peelerOpts, peel.WithHooks(hookMgr))
	}

	o := pipeline.NewOrchestrator(cfg.Pipeline.BufferSize)
	for _, w := range workers {
		o.AddSource(w)
	}
	classifier := classify.NewClassifier(len(workers), classifierOpts...)
	peeler := peel.NewPeeler(cfg.Bootstrap.BootstrapEpoch(), peelerOpts...)
	o.SetClassifier(classifier)
	o.AddOperator(peeler)
	o.SetSink(sink)

	err := o.Run(ctx)

	if options.Progress != nil {
		options.Progress.AddEvents(classifier.Stats().EventsIn)
		options.Progress.AddPeeled(peeler.Stats().Peeled)
	}

	return err
}

// SimplifyToMemory is a convenience wrapper collecting the simplified
// record collection in memory.
func SimplifyToMemory(ctx context.Context, workers []pipeline.Source, opts ...Option) (*sinks.MemorySink, error) {
	sink := sinks.NewMemorySink()
	if err := Simplify(ctx, workers, sink, opts...); err != nil {
		return nil, err
	}
	return sink, nil
}
