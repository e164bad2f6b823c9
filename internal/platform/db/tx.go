package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

// Querier is the statement surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what the repositories and the transaction manager need from the
// connection pool.
type Pool interface {
	Querier
	Beginner
}

// TxRunner executes fn as one atomic unit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type contextKey string

const unitKey contextKey = "db_unit"

// Unit is an open unit of work: the transaction (nil for in-memory runners)
// and the callbacks that must only run once it has committed.
type Unit struct {
	tx    pgx.Tx
	hooks []func(context.Context)
}

// NewUnit attaches a unit of work to ctx. Runners call Flush after a
// successful commit and simply drop the unit on rollback.
func NewUnit(ctx context.Context, tx pgx.Tx) (context.Context, *Unit) {
	u := &Unit{tx: tx}
	return context.WithValue(ctx, unitKey, u), u
}

// Flush runs the after-commit callbacks in registration order.
func (u *Unit) Flush(ctx context.Context) {
	hooks := u.hooks
	u.hooks = nil
	for _, h := range hooks {
		h(ctx)
	}
}

func unitFromContext(ctx context.Context) *Unit {
	u, _ := ctx.Value(unitKey).(*Unit)
	return u
}

// InUnit reports whether ctx carries an open unit of work.
func InUnit(ctx context.Context) bool {
	return unitFromContext(ctx) != nil
}

// TxFromContext returns the transaction bound to ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	if u := unitFromContext(ctx); u != nil {
		return u.tx
	}
	return nil
}

// Conn returns the transaction bound to ctx when there is one, otherwise fallback.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// AfterCommit defers fn until the unit of work in ctx commits. Without an
// open unit fn runs immediately. Callbacks receive a context that is no
// longer bound to the transaction.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if u := unitFromContext(ctx); u != nil {
		u.hooks = append(u.hooks, fn)
		return
	}
	fn(ctx)
}

// TxManager runs units of work on a pgx connection pool.
type TxManager struct {
	db Beginner
}

func NewTxManager(db Beginner) *TxManager {
	return &TxManager{db: db}
}

// InTx begins a transaction, binds it to the context passed to fn and commits
// when fn returns nil. Any error or panic rolls the whole unit back. A nested
// call joins the outer transaction.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InUnit(ctx) {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return apperror.Persistence("begin transaction", err)
	}
	txCtx, unit := NewUnit(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return apperror.Persistence("rollback transaction", errors.Join(err, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify("commit transaction", err)
	}

	unit.Flush(ctx)
	return nil
}
