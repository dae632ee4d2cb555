package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dborchard/txncore/pkg/lsn"
)

func TestReadWriteTxnAccumulatesEdits(t *testing.T) {
	tx := NewReadWriteTxn[string](lsn.LSN(5), nil, lsn.Unknown)
	assert.Equal(t, StateActive, tx.State())
	assert.False(t, tx.HasEdit("a"))

	tx.AddEdit("a", []byte("1"))
	tx.AddEdit("b", []byte("2"))
	tx.AddEdit("a", []byte("1-updated")) // overwrite, not duplicate

	assert.True(t, tx.HasEdit("a"))
	assert.Len(t, tx.Edits(), 2)

	var got []byte
	for _, e := range tx.Edits() {
		if e.Key == "a" {
			got = e.Value
		}
	}
	assert.Equal(t, []byte("1-updated"), got)
}

func TestReadWriteTxnReadSet(t *testing.T) {
	tx := NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	tx.AddRead("x")
	tx.AddRead("y")
	assert.Equal(t, []string{"x", "y"}, tx.ReadSet())
}

func TestReadWriteTxnCommitTransition(t *testing.T) {
	tx := NewReadWriteTxn[string](lsn.LSN(5), nil, lsn.Unknown)
	assert.Equal(t, lsn.Unknown, tx.CommitLSN())

	tx.MarkCommitted(lsn.LSN(9))
	assert.Equal(t, lsn.LSN(9), tx.CommitLSN())
	assert.Equal(t, StateCommitted, tx.State())
}

func TestRefCounting(t *testing.T) {
	tx := NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	assert.Equal(t, int64(0), tx.RefCount())
	tx.IncRef()
	tx.IncRef()
	assert.Equal(t, int64(2), tx.RefCount())
	tx.DecRef()
	assert.Equal(t, int64(1), tx.RefCount())
}

func TestReadOnlyTxnIsImmutable(t *testing.T) {
	predecessor := NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	predecessor.MarkCommitted(lsn.LSN(2))

	ro := NewReadOnlyTxn[string](lsn.LSN(2), []*ReadWriteTxn[string]{predecessor})
	assert.True(t, ro.ReadOnly())
	assert.Equal(t, lsn.LSN(2), ro.StartLSN())
	assert.Equal(t, []*ReadWriteTxn[string]{predecessor}, ro.Snapshot())
}
