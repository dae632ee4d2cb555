// Package manager implements TxnManager — the public entry points
// begin/commit/abort/current, the single-writer commit serialization
// point, and the stable-read-loop snapshot construction spec.md §4
// describes.
//
// Grounded directly on
// org.apache.directory.server.core.txn.DefaultTxnManager: method bodies
// here mirror beginReadOnlyTxn, beginReadWriteTxn, buildCheckList,
// commitReadWriteTxn, abortReadWriteTxn and prepareForEndingTxn line for
// line where Go permits, and on the teacher's own second attempt at the
// same idea (pkg/c_oracle.go's Oracle, pkg/txn/c_scheduler.go's
// readyToCommitTxns) for the surrounding Go idiom — mutex-guarded slices,
// constructor functions, explicit Stop().
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dborchard/txncore/errs"
	"github.com/dborchard/txncore/pkg/logedit"
	"github.com/dborchard/txncore/pkg/lsn"
	"github.com/dborchard/txncore/pkg/txn"
	"github.com/dborchard/txncore/pkg/verify"
	"github.com/dborchard/txncore/pkg/wal"
)

// TxnManager is the MVCC core's single shared coordinator. One instance
// guards one WAL and one CommittedQueue; every begin/commit/abort call
// across every goroutine funnels through it.
type TxnManager[ID comparable] struct {
	cfg Config
	log *zap.Logger

	wal          wal.LogHandle
	idComparator func(a, b ID) int
	idSerializer Serializer[ID]
	verifier     verify.Verifier[ID]

	// Lock order is always verifyLock -> writeTxnsLock, never reversed
	// (spec.md §5).
	verifyLock    sync.Mutex
	writeTxnsLock sync.Mutex

	latestCommittedTxn atomic.Pointer[txn.ReadWriteTxn[ID]]
	latestVerifiedTxn  atomic.Pointer[txn.ReadWriteTxn[ID]]
	flushedBaselineLSN atomic.Int64

	committed *txn.CommittedQueue[ID]

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a TxnManager. There is no separate init() step the way
// the Java source has one — Go constructors establish a fully usable
// value in one call, so "call init once before any begin" is enforced by
// construction order rather than a runtime guard; re-init isn't a
// meaningful operation here (build a new TxnManager instead).
func New[ID comparable](
	walHandle wal.LogHandle,
	idComparator func(a, b ID) int,
	idSerializer Serializer[ID],
	verifier verify.Verifier[ID],
	opts ...Option,
) *TxnManager[ID] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &TxnManager[ID]{
		cfg:          cfg,
		log:          cfg.Logger,
		wal:          walHandle,
		idComparator: idComparator,
		idSerializer: idSerializer,
		verifier:     verifier,
		committed:    txn.NewCommittedQueue[ID](),
		stopCh:       make(chan struct{}),
	}
}

// IDComparator exposes the entity-id ordering configured at construction,
// for upper layers that need to order edits (spec.md §4.1).
func (m *TxnManager[ID]) IDComparator() func(a, b ID) int { return m.idComparator }

// IDSerializer exposes the entity-id codec configured at construction.
func (m *TxnManager[ID]) IDSerializer() Serializer[ID] { return m.idSerializer }

// Start launches the background retirement sweep (§4.3). It returns
// immediately; the sweep runs until ctx is done or Stop is called.
// A zero RetirementInterval disables the background loop — callers can
// still invoke RetireSweep synchronously (e.g. right after advancing the
// baseline).
func (m *TxnManager[ID]) Start(ctx context.Context) {
	if m.cfg.RetirementInterval <= 0 {
		return
	}
	go m.runRetirementLoop(ctx)
}

// Stop halts the background retirement sweep. Safe to call multiple
// times and safe to call even if Start was never called.
func (m *TxnManager[ID]) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *TxnManager[ID]) runRetirementLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RetirementInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.RetireSweep(); n > 0 {
				m.log.Debug("retired committed transactions", zap.Int("count", n))
			}
		}
	}
}

// AdvanceBaseline moves flushedBaselineLsn forward. The core only reads
// this value (§6's baseline flusher contract); whatever merges committed
// edits into base storage calls this once it has done so up to l.
// Monotonic: calls with l <= the current value are no-ops.
func (m *TxnManager[ID]) AdvanceBaseline(l lsn.LSN) {
	for {
		cur := lsn.LSN(m.flushedBaselineLSN.Load())
		if l <= cur {
			return
		}
		if m.flushedBaselineLSN.CompareAndSwap(int64(cur), int64(l)) {
			return
		}
	}
}

// FlushedBaseline returns the current baseline LSN.
func (m *TxnManager[ID]) FlushedBaseline() lsn.LSN {
	return lsn.LSN(m.flushedBaselineLSN.Load())
}

// CommittedQueueLen reports how many read-write transactions are
// currently retained in CommittedQueue, awaiting retirement. Exposed for
// observability and tests.
func (m *TxnManager[ID]) CommittedQueueLen() int {
	return m.committed.Len()
}

// RetireSweep walks CommittedQueue from the head, removing every entry
// whose refCount is 0 and whose commit LSN is at or below the flushed
// baseline (I3), stopping at the first entry that doesn't qualify
// (§4.3). Returns the number of transactions retired. It holds
// CommittedQueue's internal lock for the whole scan; Enqueue (commit) and
// Iterator (begin, commit verification) take the same lock, so they wait
// while a sweep runs.
func (m *TxnManager[ID]) RetireSweep() int {
	baseline := m.FlushedBaseline()
	return m.committed.RemoveIf(func(t *txn.ReadWriteTxn[ID]) bool {
		return t.RefCount() == 0 && t.CommitLSN() <= baseline
	})
}

// stableRead acquires a strong reference to whatever *txn.ReadWriteTxn[ID]
// slot currently points at, without the possibility of the referent being
// retired between the read and the refcount increment (I3). Mirrors
// DefaultTxnManager's beginReadOnlyTxn/beginReadWriteTxn do-while loop
// exactly, except it tolerates a nil slot (the Java source dereferences
// latestCommittedTxn unconditionally, which would NPE on the very first
// read-only begin before any writer has ever committed; spec.md §8's
// boundary case "Empty WAL / first transaction" requires this not to
// fail, so the nil guard here is a deliberate fix, not a translation
// gap).
func stableRead[ID comparable](slot *atomic.Pointer[txn.ReadWriteTxn[ID]]) *txn.ReadWriteTxn[ID] {
	var last *txn.ReadWriteTxn[ID]
	for {
		if last != nil {
			last.DecRef()
		}
		last = slot.Load()
		if last != nil {
			last.IncRef()
		}
		if last == slot.Load() {
			return last
		}
	}
}

// buildSnapshot implements §4.1.3: every committed entry with
// commitLSN <= hwm.CommitLSN(), then drop the prefix already folded into
// base storage. Returns nil if hwm is nil (no writer has ever committed).
func (m *TxnManager[ID]) buildSnapshot(hwm *txn.ReadWriteTxn[ID]) []*txn.ReadWriteTxn[ID] {
	if hwm == nil {
		return nil
	}

	lastLSN := hwm.CommitLSN()
	var result []*txn.ReadWriteTxn[ID]
	for _, t := range m.committed.Iterator() {
		if t.CommitLSN() > lastLSN {
			break
		}
		result = append(result, t)
	}

	baseline := m.FlushedBaseline()
	i := 0
	for i < len(result) && result[i].CommitLSN() <= baseline {
		i++
	}
	return result[i:]
}

// acquireSnapshot pins slot's current high-water-mark transaction via the
// stable-read loop and builds the snapshot from it. hwm is always the last
// entry buildSnapshot would include before the baseline trim (§4.1.3), so
// the baseline trim can only ever drop it by emptying the result entirely
// — never by leaving some other entry last. When that happens, hwm's
// commit has already been folded into base storage: no entry in the
// (now-empty) snapshot holds a reference to it, so releaseSnapshotRef's
// "decrement the snapshot's last element" step at end-of-transaction would
// never run for it and the pin taken here would leak forever, blocking
// retirement indefinitely (DefaultTxnManager.prepareForEndingTxn has the
// same gap — this is a deliberate fix, not a translation gap; see
// DESIGN.md). Release it immediately instead.
func (m *TxnManager[ID]) acquireSnapshot(slot *atomic.Pointer[txn.ReadWriteTxn[ID]]) (*txn.ReadWriteTxn[ID], []*txn.ReadWriteTxn[ID]) {
	hwm := stableRead(slot)
	snapshot := m.buildSnapshot(hwm)
	if hwm != nil && len(snapshot) == 0 {
		hwm.DecRef()
	}
	return hwm, snapshot
}

// predecessorsCommittedAfter returns every committed writer whose commit
// LSN is strictly greater than startLSN — the set the verification hook
// checks a committing writer against (§4.1.4 step 3).
func (m *TxnManager[ID]) predecessorsCommittedAfter(startLSN lsn.LSN) []*txn.ReadWriteTxn[ID] {
	var result []*txn.ReadWriteTxn[ID]
	for _, t := range m.committed.Iterator() {
		if t.CommitLSN() > startLSN {
			result = append(result, t)
		}
	}
	return result
}

// --- execution-context binding -------------------------------------------
//
// The Java source binds the current transaction via a ThreadLocal. Go has
// no analogous goroutine-local storage, and the design notes explicitly
// sanction an explicit-context alternative ("passing the Transaction
// explicitly is cleaner but changes the public call surface"). This uses
// context.Context: Begin returns a derived context carrying a binding,
// and the manager instance's own pointer is the context key, so two
// TxnManagers never collide on the same context and no global registry is
// needed.

type binding[ID comparable] struct {
	mu     sync.Mutex
	txn    txn.Transaction[ID]
	active bool
}

func (m *TxnManager[ID]) bindingFor(ctx context.Context) *binding[ID] {
	b, _ := ctx.Value(m).(*binding[ID])
	return b
}

// Current returns the transaction bound to ctx, if any (I5: at most one
// at a time).
func (m *TxnManager[ID]) Current(ctx context.Context) (txn.Transaction[ID], bool) {
	b := m.bindingFor(ctx)
	if b == nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil, false
	}
	return b.txn, true
}

// Begin attaches a new transaction to ctx's execution context, returning
// the derived context the caller must use for Current/Commit/Abort.
func (m *TxnManager[ID]) Begin(ctx context.Context, readOnly bool) (context.Context, error) {
	if existing := m.bindingFor(ctx); existing != nil {
		existing.mu.Lock()
		active := existing.active
		existing.mu.Unlock()
		if active {
			return ctx, errs.ErrAlreadyActive
		}
	}

	var (
		t   txn.Transaction[ID]
		err error
	)
	if readOnly {
		t, err = m.beginReadOnly()
	} else {
		t, err = m.beginReadWrite()
	}
	if err != nil {
		return ctx, err
	}

	m.log.Debug("begin", zap.Bool("read_only", readOnly), zap.Int64("start_lsn", int64(t.StartLSN())))

	b := &binding[ID]{txn: t, active: true}
	return context.WithValue(ctx, m, b), nil
}

// beginReadOnly implements §4.1.1.
func (m *TxnManager[ID]) beginReadOnly() (*txn.ReadOnlyTxn[ID], error) {
	hwm, snapshot := m.acquireSnapshot(&m.latestCommittedTxn)

	startLSN := lsn.Unknown
	if hwm != nil {
		startLSN = hwm.CommitLSN()
	}

	return txn.NewReadOnlyTxn[ID](startLSN, snapshot), nil
}

// beginReadWrite implements §4.1.2.
func (m *TxnManager[ID]) beginReadWrite() (*txn.ReadWriteTxn[ID], error) {
	record := logedit.StateChangeRecord{TxnID: lsn.Unknown, State: logedit.StateBegin}
	data := record.Encode()

	m.writeTxnsLock.Lock()
	startLSN, err := m.wal.Append(data, false)
	if err != nil {
		m.writeTxnsLock.Unlock()
		return nil, errs.NewWalIOError(errors.Wrap(err, "append begin record"))
	}

	hwm, snapshot := m.acquireSnapshot(&m.latestVerifiedTxn)
	m.writeTxnsLock.Unlock()

	hwmLSN := lsn.Unknown
	if hwm != nil {
		hwmLSN = hwm.CommitLSN()
	}

	return txn.NewReadWriteTxn[ID](startLSN, snapshot, hwmLSN), nil
}

// Commit finalizes the transaction bound to ctx (§4.1.4 for read-write,
// a no-op publish for read-only).
func (m *TxnManager[ID]) Commit(ctx context.Context) error {
	b := m.bindingFor(ctx)
	if b == nil {
		return errs.ErrNoActiveTxn
	}

	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return errs.ErrNoActiveTxn
	}
	current := b.txn
	b.mu.Unlock()

	if err := m.releaseSnapshotRef(current); err != nil {
		return err
	}

	var err error
	if rw, ok := current.(*txn.ReadWriteTxn[ID]); ok {
		err = m.commitReadWrite(rw)
	}

	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	return err
}

// commitReadWrite implements §4.1.4 steps 1-8. The refcount release of
// step 9 is not done here: Commit calls releaseSnapshotRef before it calls
// commitReadWrite.
func (m *TxnManager[ID]) commitReadWrite(t *txn.ReadWriteTxn[ID]) error {
	record := logedit.StateChangeRecord{TxnID: t.StartLSN(), State: logedit.StateCommit}
	data := record.Encode()

	m.verifyLock.Lock()
	defer m.verifyLock.Unlock()

	predecessors := m.predecessorsCommittedAfter(t.StartLSN())
	if err := m.verifier.Verify(t, predecessors); err != nil {
		m.log.Debug("conflict detected, aborting", zap.Int64("start_lsn", int64(t.StartLSN())), zap.Error(err))
		if abortErr := m.writeAbortRecord(t); abortErr != nil {
			m.log.Error("failed to log abort after conflict", zap.Error(abortErr))
		}
		t.SetState(txn.StateAborted)
		return errs.ErrConflictDetected
	}

	m.writeTxnsLock.Lock()
	commitLSN, err := m.wal.Append(data, true)
	if err != nil {
		m.writeTxnsLock.Unlock()
		return errs.NewWalIOError(errors.Wrap(err, "append commit record"))
	}

	t.MarkCommitted(commitLSN)
	m.committed.Enqueue(t)

	// Both frontiers are published today because commitReadWrite holds
	// the log sync inside writeTxnsLock. The dual API stays even though
	// they're written together here, so readers and writers never couple
	// to whether a future change moves the sync outside the lock.
	m.latestVerifiedTxn.Store(t)
	m.latestCommittedTxn.Store(t)
	m.writeTxnsLock.Unlock()

	m.log.Debug("committed", zap.Int64("start_lsn", int64(t.StartLSN())), zap.Int64("commit_lsn", int64(commitLSN)))
	return nil
}

// Abort terminates the transaction bound to ctx. Silent no-op if none is
// bound (§4.1.5).
func (m *TxnManager[ID]) Abort(ctx context.Context) error {
	b := m.bindingFor(ctx)
	if b == nil {
		return nil
	}

	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil
	}
	current := b.txn
	b.active = false
	b.mu.Unlock()

	if err := m.releaseSnapshotRef(current); err != nil {
		return err
	}

	if rw, ok := current.(*txn.ReadWriteTxn[ID]); ok {
		err := m.writeAbortRecord(rw)
		rw.SetState(txn.StateAborted)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *TxnManager[ID]) writeAbortRecord(t *txn.ReadWriteTxn[ID]) error {
	record := logedit.StateChangeRecord{TxnID: t.StartLSN(), State: logedit.StateAbort}
	data := record.Encode()

	if _, err := m.wal.Append(data, false); err != nil {
		return errs.NewWalIOError(errors.Wrap(err, "append abort record"))
	}
	return nil
}

// releaseSnapshotRef implements §4.1.6: before tearing a transaction
// down, verify the invariants the stable-read loop depends on, then
// decrement the one strong reference begin acquired.
//
// The check is against SnapshotHighWaterMark, not StartLSN: for a
// read-write transaction those are different LSN domains by construction
// (§4.1.2 assigns its startLsn from its own BEGIN append, not from the
// predecessor it pinned), so comparing against StartLSN would fail on
// every ordinary multi-writer commit. For a read-only transaction the two
// coincide, so this subsumes the read-only case too.
func (m *TxnManager[ID]) releaseSnapshotRef(t txn.Transaction[ID]) error {
	snapshot := t.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	last := snapshot[len(snapshot)-1]
	if last.CommitLSN() != t.SnapshotHighWaterMark() {
		return errs.NewInvariantViolation("snapshot's last element commit LSN does not match the pinned high-water mark")
	}
	if last.RefCount() <= 0 {
		return errs.NewInvariantViolation("snapshot's last element has non-positive refcount at end of transaction")
	}

	last.DecRef()
	return nil
}
