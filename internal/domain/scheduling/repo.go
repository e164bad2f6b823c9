package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus moves the row from one status to another. It returns
	// ErrNotFound when the row is gone or no longer has status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (time.Time, error)
	SetBillingStatus(ctx context.Context, id uuid.UUID, status BillingStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Appointment, int, error)
}
