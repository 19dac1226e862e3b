// Package peel implements the structural peeler: the stream operator that
// removes causal records attributed to encompassing operators — wrapper and
// loop operators whose scheduling activity is structural, not real work.
//
// The peel set is derived by relational composition over the bootstrap
// operator topology: semijoin the OPERATES relation with the one-pop parent
// addresses, project operator ids, deduplicate, then antijoin the record
// stream on operator id. The topology is static and small, so the
// composition is evaluated once and reused as a hash-set filter.
package peel

import (
	"github.com/flowtrace/flowtrace/internal/model"
)

// tuple is one row of the OPERATES relation: (address, operator_id).
type tuple struct {
	key string
	id  uint64
}

// parentKeys derives the PARENT_ADDRS relation: the address of each tuple
// with its last element removed. Duplicates are fine; the semijoin
// deduplicates naturally.
func parentKeys(decls []model.OperatorDecl) map[string]struct{} {
	keys := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		keys[d.Address.Pop().Key()] = struct{}{}
	}
	return keys
}

// semiJoin keeps the tuples whose address key appears in keys.
func semiJoin(tuples []tuple, keys map[string]struct{}) []tuple {
	var matched []tuple
	for _, t := range tuples {
		if _, ok := keys[t.key]; ok {
			matched = append(matched, t)
		}
	}
	return matched
}

// distinctProject projects operator ids out of the tuples, deduplicated.
func distinctProject(tuples []tuple) map[uint64]struct{} {
	ids := make(map[uint64]struct{}, len(tuples))
	for _, t := range tuples {
		ids[t.id] = struct{}{}
	}
	return ids
}

// antiJoin filters the weighted records whose operator id misses the peel
// set. Records without an operator id (message records) always pass: the
// anti-join key is absent and never matches.
func antiJoin(records []model.WeightedRecord, peelIDs map[uint64]struct{}) (kept []model.WeightedRecord, peeled int) {
	if len(peelIDs) == 0 {
		return records, 0
	}
	kept = make([]model.WeightedRecord, 0, len(records))
	for _, wr := range records {
		if wr.Record.OperatorID != nil {
			if _, drop := peelIDs[*wr.Record.OperatorID]; drop {
				peeled++
				continue
			}
		}
		kept = append(kept, wr)
	}
	return kept, peeled
}
