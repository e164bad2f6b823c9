package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// maxFollowUpDepth bounds the walk from a follow-up back to its appointment.
const maxFollowUpDepth = 32

// PeriodCoder allocates month-scoped codes such as VIS2026030001.
type PeriodCoder interface {
	NextPeriodCode(ctx context.Context, prefix string, at time.Time) (string, error)
}

type Service struct {
	repo   Repository
	codes  PeriodCoder
	tx     db.TxRunner
	prefix string
	now    func() time.Time
}

func NewService(repo Repository, codes PeriodCoder, tx db.TxRunner, prefix string) *Service {
	return &Service{repo: repo, codes: codes, tx: tx, prefix: prefix, now: time.Now}
}

func (s *Service) insert(ctx context.Context, v *Visit) error {
	if v.VisitedAt.IsZero() {
		v.VisitedAt = s.now()
	}
	code, err := s.codes.NextPeriodCode(ctx, s.prefix, v.VisitedAt)
	if err != nil {
		return err
	}
	v.VisitCode = code
	return s.repo.Insert(ctx, v)
}

// CreateForAppointment records the visit for an approved or walk-in
// appointment. An appointment has at most one visit.
func (s *Service) CreateForAppointment(ctx context.Context, seed Seed) (*Visit, error) {
	if seed.AppointmentID == uuid.Nil {
		return nil, apperror.Validation("appointment_id", "is required")
	}
	apptID := seed.AppointmentID
	v := &Visit{
		AppointmentID: &apptID,
		PatientID:     seed.PatientID,
		StaffRef:      seed.StaffRef,
		VisitedAt:     seed.VisitedAt,
		Notes:         seed.Notes,
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.insert(ctx, v)
	})
	if err != nil {
		if db.ConstraintName(err) == "visit_appointment_id_key" {
			return nil, apperror.Conflict("appointment %s already has a visit", apptID)
		}
		return nil, err
	}
	return v, nil
}

// CreateFollowUp records a standalone visit that follows an earlier one.
func (s *Service) CreateFollowUp(ctx context.Context, priorVisitID uuid.UUID, staffRef *uuid.UUID, notes *string) (*Visit, error) {
	var v *Visit
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		prior, err := s.repo.GetByID(ctx, priorVisitID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Precondition("visit", fmt.Sprintf("prior visit %s does not exist", priorVisitID))
		}
		if err != nil {
			return err
		}
		priorID := prior.ID
		v = &Visit{FollowUpOf: &priorID, PatientID: prior.PatientID, StaffRef: staffRef, Notes: notes}
		return s.insert(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AppointmentFor resolves a visit to the appointment it bills against,
// following the follow-up chain for standalone visits.
func (s *Service) AppointmentFor(ctx context.Context, visitID uuid.UUID) (uuid.UUID, error) {
	id := visitID
	for depth := 0; depth < maxFollowUpDepth; depth++ {
		v, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return uuid.Nil, apperror.Precondition("visit", fmt.Sprintf("visit %s does not exist", id))
		}
		if err != nil {
			return uuid.Nil, err
		}
		if v.AppointmentID != nil {
			return *v.AppointmentID, nil
		}
		if v.FollowUpOf == nil {
			break
		}
		id = *v.FollowUpOf
	}
	return uuid.Nil, apperror.Precondition("visit", fmt.Sprintf("visit %s is not linked to an appointment", visitID))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error) {
	return s.repo.GetByAppointment(ctx, appointmentID)
}
