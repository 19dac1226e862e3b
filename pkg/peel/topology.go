package peel

import (
	"github.com/flowtrace/flowtrace/internal/model"
	"github.com/flowtrace/flowtrace/pkg/errors"
)

// Topology accumulates the OPERATES relation from bootstrap-epoch operator
// declarations and, once sealed, answers which operator ids are encompassing
// (parent of at least one declared operator).
//
// The operator topology is assumed static for the lifetime of the traced
// computation; declarations outside the bootstrap epoch, or after sealing,
// are rejected — folding them in would silently mis-peel already-emitted
// epochs.
type Topology struct {
	bootstrap model.Epoch
	tuples    []tuple
	decls     []model.OperatorDecl
	sealed    bool
	peelIDs   map[uint64]struct{}
}

// NewTopology creates an empty topology keyed at the bootstrap epoch.
func NewTopology(bootstrap model.Epoch) *Topology {
	return &Topology{bootstrap: bootstrap}
}

// Bootstrap returns the epoch at which the topology is declared.
func (t *Topology) Bootstrap() model.Epoch {
	return t.bootstrap
}

// Observe adds one operator declaration observed at the given epoch.
// Declarations outside the bootstrap epoch or after sealing return a
// topology error and are excluded from the relation.
func (t *Topology) Observe(decl model.OperatorDecl, epoch model.Epoch) error {
	if epoch != t.bootstrap {
		return errors.TopologyViolation(decl.OperatorID, decl.Address.Key(), epoch.String())
	}
	if t.sealed {
		return errors.TopologySealed(decl.OperatorID)
	}

	t.tuples = append(t.tuples, tuple{key: decl.Address.Key(), id: decl.OperatorID})
	t.decls = append(t.decls, decl)
	return nil
}

// Seal fixes the peel set: the distinct operator ids whose address is the
// one-pop parent of some declared operator. Sealing twice is a no-op.
func (t *Topology) Seal() {
	if t.sealed {
		return
	}
	t.sealed = true
	t.peelIDs = distinctProject(semiJoin(t.tuples, parentKeys(t.decls)))
}

// Sealed reports whether the peel set has been fixed.
func (t *Topology) Sealed() bool {
	return t.sealed
}

// ShouldPeel reports whether records for the operator id must be removed.
// Only valid after Seal.
func (t *Topology) ShouldPeel(id uint64) bool {
	_, ok := t.peelIDs[id]
	return ok
}

// PeelIDs returns a copy of the sealed peel set.
func (t *Topology) PeelIDs() []uint64 {
	ids := make([]uint64, 0, len(t.peelIDs))
	for id := range t.peelIDs {
		ids = append(ids, id)
	}
	return ids
}

// Operators returns the number of declared operators.
func (t *Topology) Operators() int {
	return len(t.tuples)
}
