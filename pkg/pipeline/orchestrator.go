package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/telemetry"
)

// Orchestrator connects per-worker Sources, the Classifier, Operators, and a
// Sink into a pipeline. It manages lifecycle and data flow between stages.
type Orchestrator struct {
	runID      string
	sources    []Source
	classifier Classifier
	operators  []Operator
	sink       Sink

	// Channel configuration
	bufferSize int
}

// NewOrchestrator creates a new pipeline orchestrator.
func NewOrchestrator(bufferSize int) *Orchestrator {
	if bufferSize <= 0 {
		bufferSize = 4096
	}

	return &Orchestrator{
		runID:      uuid.NewString(),
		operators:  make([]Operator, 0),
		bufferSize: bufferSize,
	}
}

// RunID returns the unique id of this pipeline run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// AddSource adds a worker source. One source per observed worker.
func (o *Orchestrator) AddSource(s Source) *Orchestrator {
	o.sources = append(o.sources, s)
	return o
}

// SetClassifier sets the raw-event classifier stage.
func (o *Orchestrator) SetClassifier(c Classifier) *Orchestrator {
	o.classifier = c
	return o
}

// AddOperator appends a batch operator. Operators are applied in the order
// they are added.
func (o *Orchestrator) AddOperator(op Operator) *Orchestrator {
	o.operators = append(o.operators, op)
	return o
}

// SetSink sets the record sink.
func (o *Orchestrator) SetSink(s Sink) *Orchestrator {
	o.sink = s
	return o
}

// Workers returns the number of enumerated worker sources.
func (o *Orchestrator) Workers() int {
	return len(o.sources)
}

// Run executes the pipeline until every source terminates or ctx is
// canceled. Data flows: Sources -> Classifier -> Operator1 -> ... -> Sink.
// Uses errgroup for coordinated shutdown - any error cancels all goroutines.
//
// Terminating sources flush all retained epochs downstream before the run
// completes; no partial-epoch data is discarded.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.sources) == 0 {
		return fmt.Errorf("no sources configured")
	}
	if o.classifier == nil {
		return fmt.Errorf("no classifier configured")
	}
	if o.sink == nil {
		return fmt.Errorf("no sink configured")
	}

	ctx, span := telemetry.StartSpanFromContext(ctx, "flowtrace.run")
	span.SetAttributes(
		attribute.String("run_id", o.runID),
		attribute.Int("workers", len(o.sources)),
	)
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)

	// Fan-in: every worker source writes into one merged channel. Each
	// source wrapper reports a closed frontier when its stream ends, so one
	// finished worker does not hold the global watermark down for the rest.
	merged := make(chan *model.TraceMessage, o.bufferSize)

	var sourceWG sync.WaitGroup
	sourceWG.Add(len(o.sources))
	for _, src := range o.sources {
		source := src
		g.Go(func() error {
			defer sourceWG.Done()
			if err := source.Read(ctx, merged); err != nil {
				return fmt.Errorf("source %s (worker %d): %w", source.Name(), source.Worker(), err)
			}
			closing := &model.TraceMessage{
				Worker:      source.Worker(),
				Frontier:    model.WatermarkClosed,
				HasFrontier: true,
			}
			select {
			case merged <- closing:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	g.Go(func() error {
		sourceWG.Wait()
		close(merged)
		return nil
	})

	// Classifier stage
	numStages := len(o.operators) + 1
	channels := make([]chan *model.RecordBatch, numStages)
	for i := range channels {
		channels[i] = make(chan *model.RecordBatch, o.bufferSize)
	}

	g.Go(func() error {
		defer close(channels[0])
		if err := o.classifier.Process(ctx, merged, channels[0]); err != nil {
			return fmt.Errorf("classifier %s: %w", o.classifier.Name(), err)
		}
		return nil
	})

	// Operator stages - each closes its output channel when done
	for i, op := range o.operators {
		inChan := channels[i]
		outChan := channels[i+1]
		operator := op
		stageNum := i + 1

		g.Go(func() error {
			defer close(outChan)
			if err := operator.Process(ctx, inChan, outChan); err != nil {
				return fmt.Errorf("operator %s (stage %d): %w", operator.Name(), stageNum, err)
			}
			return nil
		})
	}

	// Sink stage
	finalChan := channels[len(channels)-1]
	g.Go(func() error {
		if err := o.sink.Write(ctx, finalChan); err != nil {
			return fmt.Errorf("sink %s: %w", o.sink.Name(), err)
		}
		return nil
	})

	// Wait for all goroutines - errgroup handles cancellation
	err := g.Wait()

	// Always close sink
	if closeErr := o.sink.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close sink: %w", closeErr)
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
	}

	return err
}
