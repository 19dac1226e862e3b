package model

import "testing"

func TestOperatorAddressPop(t *testing.T) {
	addr := OperatorAddress{0, 1, 2}

	parent := addr.Pop()
	if parent.Key() != "0.1" {
		t.Errorf("expected parent key 0.1, got %q", parent.Key())
	}

	// Pop must not alias the child address.
	parent[0] = 9
	if addr[0] != 0 {
		t.Error("Pop mutated the original address")
	}

	if got := (OperatorAddress{0}).Pop().Key(); got != "" {
		t.Errorf("expected empty key for root parent, got %q", got)
	}
	if got := (OperatorAddress{}).Pop(); got != nil {
		t.Errorf("expected nil for popped empty address, got %v", got)
	}
}

func TestOperatorAddressKeyExactEquality(t *testing.T) {
	// Parent/child relation is exact key equality after one Pop; addresses
	// with ambiguous flat encodings must not collide.
	a := OperatorAddress{1, 23}
	b := OperatorAddress{12, 3}
	if a.Key() == b.Key() {
		t.Errorf("distinct addresses share key %q", a.Key())
	}

	child := OperatorAddress{0, 1}
	parent := OperatorAddress{0}
	if child.Pop().Key() != parent.Key() {
		t.Errorf("expected %q to be the parent key of %q", parent.Key(), child.Key())
	}
}

func TestEpochString(t *testing.T) {
	if got := Epoch(5).String(); got != "5" {
		t.Errorf("expected 5, got %q", got)
	}
	if got := WatermarkClosed.String(); got != "closed" {
		t.Errorf("expected closed, got %q", got)
	}
}

func TestRecordBatchEmpty(t *testing.T) {
	b := &RecordBatch{Watermark: 3}
	if !b.Empty() {
		t.Error("watermark-only batch should be empty")
	}

	b.Records = []WeightedRecord{{Diff: 1}}
	if b.Empty() {
		t.Error("batch with records should not be empty")
	}
}
