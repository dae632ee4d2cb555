package manager

import (
	"time"

	"go.uber.org/zap"

	"github.com/dborchard/txncore/internal/txnlog"
)

// Config carries the ambient knobs the teacher's constructors
// (NewOracle, NewTransactionExecutor) never needed because they had no
// injected logger and no configurable retirement cadence. Following
// talent-plan-tinykv's scheduler/server/config/config.go, fields are
// explicit and defaulted rather than parsed from a file — this is a
// library, not a standalone server, so no TOML/flag surface is in scope.
type Config struct {
	// RetirementInterval is how often Start's background goroutine walks
	// CommittedQueue looking for transactions to retire (§4.3). Zero
	// disables the background sweep; callers can still retire synchronously
	// via TxnManager.RetireSweep.
	RetirementInterval time.Duration

	// Logger receives begin, commit, conflict-abort and background
	// retirement events at Debug, and a failed ABORT append after a
	// conflict at Error. Explicit Abort calls, invariant violations and
	// other WAL failures are returned without being logged. Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRetirementInterval overrides the default retirement sweep cadence.
func WithRetirementInterval(d time.Duration) Option {
	return func(c *Config) { c.RetirementInterval = d }
}

func defaultConfig() Config {
	return Config{
		RetirementInterval: 50 * time.Millisecond,
		Logger:             txnlog.Nop(),
	}
}
