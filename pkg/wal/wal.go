// Package wal defines the write-ahead-log collaborator contract the
// transaction manager is built on top of, plus a reference in-memory
// implementation for tests and the demo driver.
//
// Grounded on the teacher's pkg/h_wal/types.go interface, trimmed to the
// single operation the transaction manager core actually drives — append
// with an optional sync. Checkpoint/recovery methods the teacher's stub
// carried (StartCKPT/EndCKPT/Recover) are out of scope here: spec.md names
// recovery/replay as a non-goal, and this core only specifies the shape of
// records a future recovery would consume, not recovery itself.
package wal

import (
	"sync"

	"github.com/dborchard/txncore/pkg/lsn"
)

// LogHandle is the opaque, ordered byte log the transaction manager
// appends state-change and data records to. Append must be atomic and
// must return a strictly increasing LSN; sync=true guarantees durability
// on return.
type LogHandle interface {
	Append(record []byte, sync bool) (lsn.LSN, error)
}

// MemoryLog is an in-memory LogHandle used by tests and cmd/txndemo. It
// never fails and never loses records; it exists to exercise TxnManager
// without a real disk-backed log.
type MemoryLog struct {
	mu      sync.Mutex
	records [][]byte
	nextLSN lsn.LSN
}

// NewMemoryLog returns an empty log. The first appended record is
// assigned LSN 1 — LSN 0 is reserved for lsn.Unknown.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextLSN: 1}
}

func (w *MemoryLog) Append(record []byte, sync bool) (lsn.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	assigned := w.nextLSN
	w.nextLSN++
	w.records = append(w.records, record)
	return assigned, nil
}

// Records returns a copy of every record appended so far, in LSN order.
func (w *MemoryLog) Records() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([][]byte, len(w.records))
	copy(out, w.records)
	return out
}

// Len reports how many records have been appended.
func (w *MemoryLog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}
