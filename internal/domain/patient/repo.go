package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	// Create inserts p unless a patient with the same phone exists, in which
	// case it returns created=false and leaves p untouched.
	Create(ctx context.Context, p *Patient) (created bool, err error)
}
