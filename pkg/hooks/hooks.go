// Package hooks provides observation hooks for the trace pipeline.
// Hooks allow injecting custom logic at epoch-lifecycle points without
// coupling the stream operators to their observers.
package hooks

import (
	"sync"

	"github.com/flowtrace/flowtrace/internal/model"
)

// Manager manages all registered hooks.
type Manager struct {
	mu sync.RWMutex

	epochFlushedHooks []EpochFlushedHook
	violationHooks    []ViolationHook
	streamClosedHooks []StreamClosedHook
}

// NewManager creates a new hook manager.
func NewManager() *Manager {
	return &Manager{}
}

// EpochFlushedHook is called when an epoch's output is emitted, after the
// watermark guaranteed its completeness.
type EpochFlushedHook func(epoch model.Epoch, records int)

// ViolationHook is called when an operator declaration is rejected.
// Use cases: alerting, diagnostics, counting.
type ViolationHook func(decl model.OperatorDecl, epoch model.Epoch, err error)

// StreamClosedHook is called when the upstream trace source terminates and
// all retained epochs have been flushed.
type StreamClosedHook func(epochsFlushed int)

// RegisterEpochFlushed adds an epoch-flush hook.
func (m *Manager) RegisterEpochFlushed(hook EpochFlushedHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochFlushedHooks = append(m.epochFlushedHooks, hook)
}

// RegisterViolation adds a topology-violation hook.
func (m *Manager) RegisterViolation(hook ViolationHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violationHooks = append(m.violationHooks, hook)
}

// RegisterStreamClosed adds a stream-closed hook.
func (m *Manager) RegisterStreamClosed(hook StreamClosedHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamClosedHooks = append(m.streamClosedHooks, hook)
}

// RunEpochFlushed executes all epoch-flush hooks.
func (m *Manager) RunEpochFlushed(epoch model.Epoch, records int) {
	m.mu.RLock()
	hooks := m.epochFlushedHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(epoch, records)
	}
}

// RunViolation executes all violation hooks.
func (m *Manager) RunViolation(decl model.OperatorDecl, epoch model.Epoch, err error) {
	m.mu.RLock()
	hooks := m.violationHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(decl, epoch, err)
	}
}

// RunStreamClosed executes all stream-closed hooks.
func (m *Manager) RunStreamClosed(epochsFlushed int) {
	m.mu.RLock()
	hooks := m.streamClosedHooks
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(epochsFlushed)
	}
}

// Clear removes all registered hooks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epochFlushedHooks = nil
	m.violationHooks = nil
	m.streamClosedHooks = nil
}

// --- Built-in hooks ---

// LoggingHook creates a hook that logs flushed epochs.
func LoggingHook(logger func(format string, args ...interface{})) EpochFlushedHook {
	return func(epoch model.Epoch, records int) {
		logger("flushed epoch %s (%d records)", epoch, records)
	}
}

// --- Progress tracking ---

// Progress contains progress information for one pipeline run.
type Progress struct {
	EventsRead     int64
	RecordsEmitted int64
	RecordsPeeled  int64
	EpochsFlushed  int64
	Violations     int64
}

// ProgressHook is called periodically with progress updates.
type ProgressHook func(progress Progress)

// ProgressTracker tracks and reports progress.
type ProgressTracker struct {
	mu       sync.Mutex
	progress Progress
	hook     ProgressHook
	interval int64 // Report every N flushed epochs
	counter  int64
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(interval int64, hook ProgressHook) *ProgressTracker {
	return &ProgressTracker{
		interval: interval,
		hook:     hook,
	}
}

// AddEvents increments the raw-event counter.
func (t *ProgressTracker) AddEvents(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.EventsRead += n
}

// AddRecords increments the emitted-record counter.
func (t *ProgressTracker) AddRecords(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.RecordsEmitted += n
}

// AddPeeled increments the peeled-record counter.
func (t *ProgressTracker) AddPeeled(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.RecordsPeeled += n
}

// AddViolation increments the violation counter.
func (t *ProgressTracker) AddViolation() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Violations++
}

// EpochFlushed increments the epoch counter and optionally reports progress.
func (t *ProgressTracker) EpochFlushed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress.EpochsFlushed++
	t.counter++

	if t.counter >= t.interval && t.hook != nil {
		t.hook(t.progress)
		t.counter = 0
	}
}

// GetProgress returns a copy of the current progress.
func (t *ProgressTracker) GetProgress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}
