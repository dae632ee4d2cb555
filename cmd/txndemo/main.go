// Command txndemo drives TxnManager the way the teacher's cmd/driver/main.go
// drove the toy Db: a normal read/write, then two concurrent writers racing
// over the same key to demonstrate conflict detection and the ABORT path.
// Generalized here to talk to the real WAL-backed manager instead of the
// teacher's in-memory stub, and to apply committed edits into the overlay
// store the way an operation layer above this core would.
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dborchard/txncore/errs"
	"github.com/dborchard/txncore/internal/store"
	"github.com/dborchard/txncore/pkg/manager"
	"github.com/dborchard/txncore/pkg/txn"
	"github.com/dborchard/txncore/pkg/verify"
	"github.com/dborchard/txncore/pkg/wal"
)

// stringSerializer is the demo's idSerializer — entity ids here are just
// plain strings.
type stringSerializer struct{}

func (stringSerializer) Encode(id string) ([]byte, error)   { return []byte(id), nil }
func (stringSerializer) Decode(data []byte) (string, error) { return string(data), nil }

func main() {
	log := wal.NewMemoryLog()
	mgr := manager.New[string](
		log,
		strings.Compare,
		stringSerializer{},
		verify.WriteSetVerifier[string]{},
	)

	overlay := store.NewOverlay[string](func(a, b string) bool { return a < b })

	ctx := context.Background()

	// Normal read/write: two sequential writers touching the same key.
	mustUpdate(mgr, overlay, ctx, "HDD", "Hard disk", 0)
	mustUpdate(mgr, overlay, ctx, "HDD", "Hard disk drive", 0)

	view(mgr, overlay, ctx, "HDD")

	// Two concurrent writers racing over the same key: the slower one
	// should observe a conflict and abort.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := update(mgr, overlay, ctx, "HDD", "Hard disk (writer A)", 25*time.Millisecond)
		if err == nil {
			panic("expected conflict, got nil error")
		}
		if !errors.Is(err, errs.ErrConflictDetected) {
			panic(err)
		}
		fmt.Println("writer A aborted on conflict, as expected")
	}()

	go func() {
		defer wg.Done()
		if err := update(mgr, overlay, ctx, "HDD", "Hard disk (writer B)", 10*time.Millisecond); err != nil {
			panic(err)
		}
		fmt.Println("writer B committed")
	}()

	wg.Wait()
	view(mgr, overlay, ctx, "HDD")
}

func mustUpdate(mgr *manager.TxnManager[string], ov *store.Overlay[string], ctx context.Context, key, value string, delay time.Duration) {
	if err := update(mgr, ov, ctx, key, value, delay); err != nil {
		panic(err)
	}
}

// update begins a read-write transaction, accumulates one edit, commits,
// and applies the commit into the overlay — standing in for the
// out-of-scope operation layer spec.md §6 names as the consumer of
// Current().
func update(mgr *manager.TxnManager[string], ov *store.Overlay[string], ctx context.Context, key, value string, delay time.Duration) error {
	txCtx, err := mgr.Begin(ctx, false)
	if err != nil {
		return err
	}

	t, _ := mgr.Current(txCtx)
	rw := t.(*txn.ReadWriteTxn[string])
	rw.AddEdit(key, []byte(value))

	if delay > 0 {
		time.Sleep(delay)
	}

	if err := mgr.Commit(txCtx); err != nil {
		return err
	}

	commitLSN := rw.CommitLSN()
	for _, e := range rw.Edits() {
		ov.Apply(e.Key, commitLSN, e.Value)
	}
	return nil
}

func view(mgr *manager.TxnManager[string], ov *store.Overlay[string], ctx context.Context, key string) {
	txCtx, err := mgr.Begin(ctx, true)
	if err != nil {
		panic(err)
	}
	defer func() { _ = mgr.Commit(txCtx) }()

	t, _ := mgr.Current(txCtx)
	value, ok := ov.Get(key, t.StartLSN())
	fmt.Println(ok, string(value))
}
