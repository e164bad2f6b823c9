// Package dbtest provides an in-memory db.TxRunner for service tests.
package dbtest

import (
	"context"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// Snapshotter is an in-memory store that can capture its state. The
// returned function restores that state.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Runner mimics db.TxManager for fakes: it snapshots every tracked store
// before the outermost unit and restores them when the unit fails.
// After-commit callbacks run only on success. Not safe for concurrent use.
type Runner struct {
	stores  []Snapshotter
	Commits int
	Aborts  int
}

func NewRunner(stores ...Snapshotter) *Runner {
	return &Runner{stores: stores}
}

func (r *Runner) Track(s Snapshotter) { r.stores = append(r.stores, s) }

func (r *Runner) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if db.InUnit(ctx) {
		return fn(ctx)
	}
	restores := make([]func(), len(r.stores))
	for i, s := range r.stores {
		restores[i] = s.Snapshot()
	}
	rollback := func() {
		for _, restore := range restores {
			restore()
		}
		r.Aborts++
	}

	txCtx, unit := db.NewUnit(ctx, nil)
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()
	if err := fn(txCtx); err != nil {
		rollback()
		return err
	}
	r.Commits++
	unit.Flush(ctx)
	return nil
}
