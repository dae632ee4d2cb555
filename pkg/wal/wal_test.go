package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dborchard/txncore/pkg/lsn"
)

func TestMemoryLogAssignsIncreasingLSNs(t *testing.T) {
	log := NewMemoryLog()

	first, err := log.Append([]byte("a"), false)
	assert.NoError(t, err)
	assert.Equal(t, lsn.LSN(1), first)

	second, err := log.Append([]byte("b"), true)
	assert.NoError(t, err)
	assert.Equal(t, lsn.LSN(2), second)

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, log.Records())
	assert.Equal(t, 2, log.Len())
}
