package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dborchard/txncore/pkg/lsn"
	"github.com/dborchard/txncore/pkg/txn"
)

func committedWriter(key string) *txn.ReadWriteTxn[string] {
	t := txn.NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	t.AddEdit(key, []byte("v"))
	t.MarkCommitted(lsn.LSN(2))
	return t
}

func TestWriteSetVerifierDetectsWriteWriteConflict(t *testing.T) {
	current := txn.NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	current.AddEdit("k", []byte("new"))

	err := WriteSetVerifier[string]{}.Verify(current, []*txn.ReadWriteTxn[string]{committedWriter("k")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWriteSetVerifierIgnoresReadOnlyOverlap(t *testing.T) {
	current := txn.NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	current.AddRead("k") // read-only overlap; write-set verifier doesn't care
	current.AddEdit("other", []byte("new"))

	err := WriteSetVerifier[string]{}.Verify(current, []*txn.ReadWriteTxn[string]{committedWriter("k")})
	assert.NoError(t, err)
}

func TestSerializableVerifierDetectsReadWriteConflict(t *testing.T) {
	current := txn.NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	current.AddRead("k")
	current.AddEdit("other", []byte("new"))

	err := SerializableVerifier[string]{}.Verify(current, []*txn.ReadWriteTxn[string]{committedWriter("k")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSerializableVerifierNoConflict(t *testing.T) {
	current := txn.NewReadWriteTxn[string](lsn.LSN(1), nil, lsn.Unknown)
	current.AddRead("unrelated")
	current.AddEdit("other", []byte("new"))

	err := SerializableVerifier[string]{}.Verify(current, []*txn.ReadWriteTxn[string]{committedWriter("k")})
	assert.NoError(t, err)
}
