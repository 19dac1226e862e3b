package pipeline

import (
	"github.com/flowtrace/flowtrace/internal/model"
)

// Frontier tracks the low watermark reported by each observed worker and
// derives the global watermark: the lowest epoch for which some worker may
// still deliver events. Epochs strictly below the global watermark are
// complete and safe to emit.
//
// Frontier is not safe for concurrent use; it is owned by the single
// goroutine of the operator holding it.
type Frontier struct {
	expected int
	reported map[uint64]model.Epoch
}

// NewFrontier creates a frontier over the enumerated worker count. Until
// every worker has reported at least once, the global watermark is zero:
// nothing is complete.
func NewFrontier(numWorkers int) *Frontier {
	return &Frontier{
		expected: numWorkers,
		reported: make(map[uint64]model.Epoch, numWorkers),
	}
}

// Advance records a watermark advance for one worker and returns the global
// watermark along with whether it moved. Regressions are ignored: a
// watermark is a hard completeness guarantee and cannot be taken back.
func (f *Frontier) Advance(worker uint64, epoch model.Epoch) (model.Epoch, bool) {
	before := f.Watermark()

	if cur, ok := f.reported[worker]; !ok || epoch > cur {
		f.reported[worker] = epoch
	}

	after := f.Watermark()
	return after, after > before
}

// Watermark returns the current global watermark: the minimum across all
// enumerated workers, or zero while any worker has yet to report.
func (f *Frontier) Watermark() model.Epoch {
	if len(f.reported) < f.expected {
		return 0
	}

	min := model.WatermarkClosed
	for _, e := range f.reported {
		if e < min {
			min = e
		}
	}
	return min
}

// Workers returns the number of workers that have reported so far.
func (f *Frontier) Workers() int {
	return len(f.reported)
}
