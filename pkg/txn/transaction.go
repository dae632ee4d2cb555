// Package txn holds the transaction entities the manager creates,
// publishes and retires: ReadOnlyTxn, ReadWriteTxn and the CommittedQueue
// they flow through.
//
// Grounded on the teacher's pkg/txn/b_txn.go (Txn with writeSet/readSet/
// snapshot) and the Java Transaction/ReadOnlyTxn/ReadWriteTxn hierarchy
// implied by DefaultTxnManager.java, generalized from the teacher's
// single concrete Txn struct into the spec's two-variant shape and
// parameterized over the caller's entity-id type.
package txn

import (
	"sync/atomic"

	"github.com/dborchard/txncore/pkg/lsn"
)

// State is the lifecycle state of a ReadWriteTxn.
type State int32

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Edit is one pending modification accumulated on a ReadWriteTxn by the
// operation layer. The core treats Value as opaque.
type Edit[ID comparable] struct {
	Key   ID
	Value []byte
}

// Transaction is implemented by both ReadOnlyTxn and ReadWriteTxn. It is
// the type TxnManager.Current returns to the operation layer.
type Transaction[ID comparable] interface {
	StartLSN() lsn.LSN
	Snapshot() []*ReadWriteTxn[ID]
	ReadOnly() bool

	// SnapshotHighWaterMark is the commit LSN of the predecessor this
	// transaction's snapshot was built from at begin time — captured
	// independently of StartLSN, which for a writer is its own BEGIN-record
	// LSN, not the high-water mark. Used by the manager's end-of-transaction
	// check to confirm the snapshot it is about to release a ref on is still
	// the one it pinned at begin.
	SnapshotHighWaterMark() lsn.LSN
}

// ReadOnlyTxn is immutable after creation: a start LSN and the snapshot
// of concurrently-committed writers it must overlay on base storage.
type ReadOnlyTxn[ID comparable] struct {
	startLSN lsn.LSN
	snapshot []*ReadWriteTxn[ID]
}

// NewReadOnlyTxn constructs a read-only transaction. snapshot must already
// be in ascending commit-LSN order (see TxnManager's snapshot builder).
// startLSN is also the read-only transaction's high-water mark: a
// read-only begin sets it directly from the pinned predecessor's commit
// LSN (§4.1.1).
func NewReadOnlyTxn[ID comparable](startLSN lsn.LSN, snapshot []*ReadWriteTxn[ID]) *ReadOnlyTxn[ID] {
	return &ReadOnlyTxn[ID]{startLSN: startLSN, snapshot: snapshot}
}

func (t *ReadOnlyTxn[ID]) StartLSN() lsn.LSN             { return t.startLSN }
func (t *ReadOnlyTxn[ID]) Snapshot() []*ReadWriteTxn[ID] { return t.snapshot }
func (t *ReadOnlyTxn[ID]) ReadOnly() bool                { return true }

// SnapshotHighWaterMark returns startLSN: for a read-only transaction the
// two coincide by construction.
func (t *ReadOnlyTxn[ID]) SnapshotHighWaterMark() lsn.LSN { return t.startLSN }

// ReadWriteTxn is a writer: it accumulates edits and an optional read set
// until commit, at which point it is assigned a commit LSN and published
// to readers via CommittedQueue.
type ReadWriteTxn[ID comparable] struct {
	startLSN    lsn.LSN
	snapshot    []*ReadWriteTxn[ID]
	snapshotHWM lsn.LSN

	commitLSN atomic.Int64
	state     atomic.Int32
	refCount  atomic.Int64

	// edits/readSet are owned by the creating goroutine until commit
	// enqueues the transaction; no lock needed before that point.
	edits     []Edit[ID]
	editIndex map[ID]int
	readSet   []ID
}

// NewReadWriteTxn constructs an active writer with the given start LSN
// and predecessor snapshot. hwmLSN is the commit LSN of the predecessor
// the snapshot was pinned from (lsn.Unknown if none) — distinct from
// startLSN, which is this writer's own BEGIN-record LSN (§4.1.2).
func NewReadWriteTxn[ID comparable](startLSN lsn.LSN, snapshot []*ReadWriteTxn[ID], hwmLSN lsn.LSN) *ReadWriteTxn[ID] {
	t := &ReadWriteTxn[ID]{
		startLSN:    startLSN,
		snapshot:    snapshot,
		snapshotHWM: hwmLSN,
		editIndex:   make(map[ID]int),
	}
	t.commitLSN.Store(int64(lsn.Unknown))
	t.state.Store(int32(StateActive))
	return t
}

func (t *ReadWriteTxn[ID]) StartLSN() lsn.LSN              { return t.startLSN }
func (t *ReadWriteTxn[ID]) Snapshot() []*ReadWriteTxn[ID]  { return t.snapshot }
func (t *ReadWriteTxn[ID]) ReadOnly() bool                 { return false }
func (t *ReadWriteTxn[ID]) SnapshotHighWaterMark() lsn.LSN { return t.snapshotHWM }

func (t *ReadWriteTxn[ID]) CommitLSN() lsn.LSN { return lsn.LSN(t.commitLSN.Load()) }
func (t *ReadWriteTxn[ID]) State() State       { return State(t.state.Load()) }

func (t *ReadWriteTxn[ID]) SetState(s State) { t.state.Store(int32(s)) }

// MarkCommitted publishes the commit LSN and flips the state to
// COMMITTED. Called once, under writeTxnsLock, by the manager.
func (t *ReadWriteTxn[ID]) MarkCommitted(commitLSN lsn.LSN) {
	t.commitLSN.Store(int64(commitLSN))
	t.state.Store(int32(StateCommitted))
}

// RefCount returns the number of live references (snapshot pins) held on
// this transaction. It must be 0 before retirement.
func (t *ReadWriteTxn[ID]) RefCount() int64 { return t.refCount.Load() }

func (t *ReadWriteTxn[ID]) IncRef() { t.refCount.Add(1) }
func (t *ReadWriteTxn[ID]) DecRef() { t.refCount.Add(-1) }

// AddEdit records a pending write. Not safe to call concurrently with
// itself or with commit — edits are single-writer, owned by the goroutine
// that holds the transaction.
func (t *ReadWriteTxn[ID]) AddEdit(key ID, value []byte) {
	if idx, ok := t.editIndex[key]; ok {
		t.edits[idx].Value = value
		return
	}
	t.editIndex[key] = len(t.edits)
	t.edits = append(t.edits, Edit[ID]{Key: key, Value: value})
}

// AddRead records a key observed by a read, for verifiers that check
// full serializability rather than snapshot-isolation-style write-write
// conflicts only.
func (t *ReadWriteTxn[ID]) AddRead(key ID) {
	t.readSet = append(t.readSet, key)
}

// Edits returns the accumulated write set in insertion order.
func (t *ReadWriteTxn[ID]) Edits() []Edit[ID] { return t.edits }

// ReadSet returns the accumulated read set.
func (t *ReadWriteTxn[ID]) ReadSet() []ID { return t.readSet }

// HasEdit reports whether key is present in this transaction's write set.
// Used by verifiers to detect write-write (and, for the serializable
// variant, read-write) conflicts.
func (t *ReadWriteTxn[ID]) HasEdit(key ID) bool {
	_, ok := t.editIndex[key]
	return ok
}
