// Package txnlog wires go.uber.org/zap into the transaction manager. The
// teacher repo carries no logging at all; this follows the shape
// talent-plan-tinykv and TangliziGit-simple-kv use zap in (a single
// injected *zap.Logger, defaulting to a no-op so a library consumer who
// never configured logging doesn't pay for it).
package txnlog

import "go.uber.org/zap"

// Nop returns a logger that discards everything, used as TxnManager's
// default when no logger is configured.
func Nop() *zap.Logger {
	return zap.NewNop()
}
