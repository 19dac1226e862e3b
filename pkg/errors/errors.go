// Package errors provides structured error handling for Flowtrace.
// It implements errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Source errors (1xx)
	CodeSourceClosed   Code = "E101"
	CodeSourceOrdering Code = "E102"

	// Classification errors (2xx)
	CodeEpochRegressed Code = "E201"

	// Topology errors (3xx)
	CodeTopologyViolation Code = "E301"
	CodeTopologySealed    Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodePipelineConfig  Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// PipelineError is the base error type for all Flowtrace errors.
type PipelineError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new PipelineError.
func New(code Code, message string) *PipelineError {
	return &PipelineError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *PipelineError {
	if err == nil {
		return nil
	}

	return &PipelineError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *PipelineError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *PipelineError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// TopologyViolation creates an error for an operator declaration observed
// outside the bootstrap epoch.
func TopologyViolation(operatorID uint64, address string, epoch string) *PipelineError {
	return New(CodeTopologyViolation, "operator declared outside bootstrap epoch").
		WithContext("operator_id", operatorID).
		WithContext("address", address).
		WithContext("epoch", epoch)
}

// TopologySealed creates an error for a declaration arriving after the
// topology has been sealed.
func TopologySealed(operatorID uint64) *PipelineError {
	return New(CodeTopologySealed, "operator declared after topology sealed").
		WithContext("operator_id", operatorID)
}

// EpochRegressed creates an error for input arriving below the watermark.
func EpochRegressed(epoch, watermark string) *PipelineError {
	return New(CodeEpochRegressed, "event arrived for completed epoch").
		WithContext("epoch", epoch).
		WithContext("watermark", watermark)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *PipelineError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return CodeUnknown
}
