package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the ledger's storage. Nothing outside this package writes
// billing rows.
type Repository interface {
	InsertTransaction(ctx context.Context, t *Transaction) error
	// InsertItem adds item unless the transaction already has one with the
	// same type and name. It reports whether a row was written.
	InsertItem(ctx context.Context, item *Item) (bool, error)
	// PendingForUpdate locks the appointment's pending transaction.
	// ErrNotFound when there is none.
	PendingForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Transaction, error)
	HasPending(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	Items(ctx context.Context, transactionID uuid.UUID) ([]Item, error)
	// RecomputeTotal derives subtotal and total from the stored items and
	// discount. It is the only statement that writes total_amount.
	RecomputeTotal(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
	MarkPaid(ctx context.Context, id uuid.UUID, p Payment, paidAt time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
	DeleteUnpaid(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	List(ctx context.Context, f Filter) ([]*Transaction, int, error)
}
