// Package logedit encodes and decodes the state-change markers the
// transaction manager appends to the WAL for BEGIN, COMMIT and ABORT.
//
// Wire format (big-endian, 12 bytes): txnId int64, state int32. Grounded
// on org.apache.directory.server.core.txn.logedit.TxnStateChange, which
// serializes the same two fields (readExternal/writeExternal) in the same
// order.
package logedit

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dborchard/txncore/pkg/lsn"
)

// State is the lifecycle marker recorded alongside a transaction's id.
type State int32

const (
	StateBegin State = iota
	StateCommit
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "BEGIN"
	case StateCommit:
		return "COMMIT"
	case StateAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// recordSize is the fixed wire size: 8 bytes txnID + 4 bytes state.
const recordSize = 12

// StateChangeRecord is the opaque payload appended to the WAL for every
// BEGIN/COMMIT/ABORT transition. TxnID is UNKNOWN_LSN for BEGIN and the
// transaction's start LSN for COMMIT/ABORT.
type StateChangeRecord struct {
	TxnID lsn.LSN
	State State
}

// Encode serializes the record. It cannot fail — the wire format is fixed
// width with no variable-length fields.
func (r StateChangeRecord) Encode() []byte {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.TxnID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(r.State))
	return buf
}

// Decode parses a record previously produced by Encode.
func Decode(data []byte) (StateChangeRecord, error) {
	if len(data) < recordSize {
		return StateChangeRecord{}, errors.Errorf("logedit: short record (%d bytes, want %d)", len(data), recordSize)
	}

	txnID := lsn.LSN(binary.BigEndian.Uint64(data[0:8]))
	state := State(binary.BigEndian.Uint32(data[8:12]))

	switch state {
	case StateBegin, StateCommit, StateAbort:
	default:
		return StateChangeRecord{}, errors.Errorf("logedit: unknown state %d", state)
	}

	return StateChangeRecord{TxnID: txnID, State: state}, nil
}
