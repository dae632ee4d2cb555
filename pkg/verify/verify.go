// Package verify names the conflict-detection hook spec.md §6/§9 leaves
// as a policy decision for the caller. The core specifies where
// verification runs (under verifyLock, against every writer that
// committed after the current transaction's start LSN) and when
// (commit-time, before the COMMIT record is appended) — not which
// predicates constitute a conflict. This package offers the two variants
// spec.md §9's open question invites: write-set-only (snapshot isolation)
// and write-set-plus-read-set (full serializability).
package verify

import (
	"github.com/dborchard/txncore/pkg/txn"
)

// Verifier decides whether current conflicts with predecessors — every
// read-write transaction that committed after current's start LSN. It
// must be pure: no mutation of current, predecessors, or any shared
// state.
type Verifier[ID comparable] interface {
	Verify(current *txn.ReadWriteTxn[ID], predecessors []*txn.ReadWriteTxn[ID]) error
}

// ErrConflict is returned by the built-in verifiers below when a conflict
// is found. TxnManager translates any non-nil Verify error into
// errs.ErrConflictDetected at the public API boundary — the manager
// doesn't care which predicate fired, only that verification failed.
var ErrConflict = conflictError{}

type conflictError struct{}

func (conflictError) Error() string { return "verify: conflict" }

// WriteSetVerifier implements snapshot-isolation-style verification: a
// conflict exists only if current and a predecessor wrote the same key.
// This matches the literal scope of the Java source's verification TODO
// ("verify txn here throw conflict exception if necessary") — it never
// specifies read-set checking, only that a write-set check belongs there.
type WriteSetVerifier[ID comparable] struct{}

func (WriteSetVerifier[ID]) Verify(current *txn.ReadWriteTxn[ID], predecessors []*txn.ReadWriteTxn[ID]) error {
	for _, p := range predecessors {
		for _, e := range current.Edits() {
			if p.HasEdit(e.Key) {
				return ErrConflict
			}
		}
	}
	return nil
}

// SerializableVerifier additionally checks current's read set against
// each predecessor's write set, catching read-write conflicts that
// snapshot isolation alone would miss. This matches the conflict check
// the teacher's Oracle.hasConflictFor actually implements
// (pkg/c_oracle.go), which compares the committing txn's readSet against
// already-committed writers' writeSets.
type SerializableVerifier[ID comparable] struct{}

func (SerializableVerifier[ID]) Verify(current *txn.ReadWriteTxn[ID], predecessors []*txn.ReadWriteTxn[ID]) error {
	for _, p := range predecessors {
		for _, key := range current.ReadSet() {
			if p.HasEdit(key) {
				return ErrConflict
			}
		}
		for _, e := range current.Edits() {
			if p.HasEdit(e.Key) {
				return ErrConflict
			}
		}
	}
	return nil
}
