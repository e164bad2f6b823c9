package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error)
}
