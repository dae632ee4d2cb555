// Package errs defines the error kinds spec.md §7 names. The three
// caller-bug kinds are flat sentinels, in the same style as the teacher's
// pkg/txn/z_error.go and pkg/a_misc/errmsg/types.go. WalIOError and
// InvariantViolationError are struct types, since the manager itself
// raises them: WalIOError carries the underlying WAL cause,
// InvariantViolationError a detail message.
package errs

import "fmt"

var (
	// ErrAlreadyActive is returned by begin() when a transaction is
	// already bound to the calling execution context.
	ErrAlreadyActive = fmt.Errorf("txncore: transaction already active on this context")

	// ErrNoActiveTxn is returned by commit() when no transaction is bound.
	ErrNoActiveTxn = fmt.Errorf("txncore: no active transaction bound to this context")

	// ErrConflictDetected is returned by commit() when the verification
	// hook rejects a read-write transaction. The transaction has already
	// been aborted (ABORT record written) by the time this surfaces.
	ErrConflictDetected = fmt.Errorf("txncore: conflict detected during commit verification")
)

// WalIOError wraps an opaque I/O failure from the WAL collaborator.
// Per spec.md §7, transaction state is undefined after this error;
// callers should treat the process as needing to stop unless recovery is
// implemented above this core.
type WalIOError struct {
	Cause error
}

func NewWalIOError(cause error) *WalIOError {
	return &WalIOError{Cause: cause}
}

func (e *WalIOError) Error() string {
	return fmt.Sprintf("txncore: wal io error: %v", e.Cause)
}

func (e *WalIOError) Unwrap() error {
	return e.Cause
}

// InvariantViolationError reports a failed guard check — today only the
// §4.1.6 refcount-decrement checks on end of transaction. Fatal: the
// caller should not retry.
type InvariantViolationError struct {
	Detail string
}

func NewInvariantViolation(detail string) *InvariantViolationError {
	return &InvariantViolationError{Detail: detail}
}

func (e *InvariantViolationError) Error() string {
	return "txncore: invariant violated: " + e.Detail
}
