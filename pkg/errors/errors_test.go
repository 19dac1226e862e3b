package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeTopologyViolation, "operator declared outside bootstrap epoch").
		WithContext("operator_id", uint64(4))

	msg := err.Error()
	if !strings.Contains(msg, "E301") {
		t.Errorf("message must carry the code: %q", msg)
	}
	if !strings.Contains(msg, "operator_id=4") {
		t.Errorf("message must carry context: %q", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeSourceClosed, "trace source failed")

	if !errors.Is(err, cause) {
		t.Error("wrapped error must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("cause missing from message: %q", err.Error())
	}

	if Wrap(nil, CodeSourceClosed, "ignored") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeEpochRegressed, "event arrived for completed epoch")
	b := New(CodeEpochRegressed, "different message")

	if !errors.Is(a, b) {
		t.Error("errors with the same code must match")
	}
	if errors.Is(a, New(CodeTopologySealed, "x")) {
		t.Error("errors with different codes must not match")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := TopologySealed(3)
	outer := fmt.Errorf("peel: %w", inner)

	if !IsCode(outer, CodeTopologySealed) {
		t.Error("IsCode must see through fmt wrapping")
	}
	if got := GetCode(outer); got != CodeTopologySealed {
		t.Errorf("expected %s, got %s", CodeTopologySealed, got)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Errorf("expected %s for plain error, got %s", CodeUnknown, got)
	}
}

func TestStackTraceCaptured(t *testing.T) {
	err := New(CodeUnknown, "boom")
	if len(err.StackTrace) == 0 {
		t.Fatal("expected a captured stack trace")
	}
	if !strings.Contains(err.FormatStack(), "errors_test.go") {
		t.Errorf("stack must include the call site:\n%s", err.FormatStack())
	}
}
