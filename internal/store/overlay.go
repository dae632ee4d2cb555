// Package store provides a reference implementation of the operation
// layer's overlay: a multi-version, commit-LSN-ordered index upper layers
// can use to answer "what does this key look like at LSN X" by combining
// base storage with a transaction's snapshot list. The transaction
// manager core does not depend on this package — it is supplied so
// cmd/txndemo and tests have something to apply committed edits to.
//
// Grounded directly on the teacher's pkg/f_mv_store.go /
// pkg/f_mv_store_types.go, which keyed a tidwall/btree.BTreeG by
// (key, version) pairs; generalized from the teacher's []byte-only key to
// any comparable entity-id type, matching this module's ID generic.
package store

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/dborchard/txncore/pkg/lsn"
)

type versionedKey[ID comparable] struct {
	key       ID
	commitLSN lsn.LSN
}

type entry[ID comparable] struct {
	key   versionedKey[ID]
	value []byte
}

// Overlay is a version-ordered store of applied edits, keyed by
// (entity id, commit LSN). less orders entity ids the same way the
// manager's configured idComparator does, so range scans group all
// versions of a key together.
type Overlay[ID comparable] struct {
	mu    sync.RWMutex
	btree *btree.BTreeG[entry[ID]]
}

// NewOverlay builds an empty overlay. less must impose a total order on
// ID — callers typically derive it from the same idComparator passed to
// the manager.
func NewOverlay[ID comparable](less func(a, b ID) bool) *Overlay[ID] {
	return &Overlay[ID]{
		btree: btree.NewBTreeG(func(a, b entry[ID]) bool {
			if a.key.key != b.key.key {
				return less(a.key.key, b.key.key)
			}
			return a.key.commitLSN < b.key.commitLSN
		}),
	}
}

// Apply records the effect of a committed edit. Called once per edit,
// after the owning transaction's commit LSN is known.
func (o *Overlay[ID]) Apply(key ID, commitLSN lsn.LSN, value []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.btree.Set(entry[ID]{key: versionedKey[ID]{key: key, commitLSN: commitLSN}, value: value})
}

// Get returns the value visible for key as of asOf — the newest version
// with commitLSN <= asOf, if any.
func (o *Overlay[ID]) Get(key ID, asOf lsn.LSN) ([]byte, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var (
		found []byte
		ok    bool
	)
	pivot := entry[ID]{key: versionedKey[ID]{key: key, commitLSN: asOf}}
	o.btree.Descend(pivot, func(e entry[ID]) bool {
		if e.key.key != key {
			return false
		}
		found = e.value
		ok = true
		return false
	})
	return found, ok
}
