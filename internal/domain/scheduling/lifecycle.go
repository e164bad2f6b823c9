package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
)

// CodeAllocator hands out and compacts patient codes. Both methods must run
// inside the unit of work that uses the result.
type CodeAllocator interface {
	NextPatientCode(ctx context.Context) (string, error)
	ReindexPatientCodes(ctx context.Context) (int, error)
}

type PriceResolver interface {
	Price(appointmentType string) decimal.Decimal
}

// Retrier re-runs a whole unit of work after an identifier collision.
type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// BillingUnlinker removes the unpaid billing records of an appointment that
// is about to be deleted.
type BillingUnlinker interface {
	RemoveUnpaid(ctx context.Context, appointmentID uuid.UUID) error
}

// EventPublisher receives committed lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(ctx context.Context, ev LifecycleEvent)
}

type Deps struct {
	Repo     Repository
	Codes    CodeAllocator
	Prices   PriceResolver
	Tx       db.TxRunner
	Retry    Retrier
	Unlinker BillingUnlinker
	Events   EventPublisher
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Lifecycle owns appointment creation, status transitions and deletion.
type Lifecycle struct {
	repo     Repository
	codes    CodeAllocator
	prices   PriceResolver
	tx       db.TxRunner
	retry    Retrier
	unlinker BillingUnlinker
	events   EventPublisher
	loc      *time.Location
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

type onceRetrier struct{}

func (onceRetrier) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, LifecycleEvent) {}

func NewLifecycle(d Deps) *Lifecycle {
	l := &Lifecycle{
		repo:     d.Repo,
		codes:    d.Codes,
		prices:   d.Prices,
		tx:       d.Tx,
		retry:    d.Retry,
		unlinker: d.Unlinker,
		events:   d.Events,
		loc:      d.Location,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      time.Now,
	}
	if l.retry == nil {
		l.retry = onceRetrier{}
	}
	if l.events == nil {
		l.events = nopPublisher{}
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	return l
}

// SetBillingUnlinker wires the billing side after both services exist.
func (l *Lifecycle) SetBillingUnlinker(u BillingUnlinker) { l.unlinker = u }

func (l *Lifecycle) Location() *time.Location { return l.loc }

func (l *Lifecycle) build(req BookingRequest) (*Appointment, error) {
	req.AppointmentType = strings.TrimSpace(req.AppointmentType)
	if req.AppointmentType == "" {
		return nil, apperror.Validation("appointment_type", "is required")
	}
	if req.SpecialistRef == uuid.Nil {
		return nil, apperror.Validation("specialist_ref", "is required")
	}
	if req.Source == "" {
		req.Source = SourceOnline
	}
	if !req.Source.Valid() {
		return nil, apperror.Validation("source", fmt.Sprintf("unknown source %q", req.Source))
	}
	status := req.InitialStatus
	if status == "" {
		status = StatusPending
	}
	if status != StatusPending && status != StatusConfirmed {
		return nil, apperror.Validation("status", fmt.Sprintf("cannot book directly into %s", status))
	}
	at, err := ScheduledAt(req.Date, req.Time, l.loc)
	if err != nil {
		return nil, err
	}
	price := l.prices.Price(req.AppointmentType)
	if req.BasePrice != nil {
		if req.BasePrice.IsNegative() {
			return nil, apperror.Validation("base_price", "must not be negative")
		}
		price = *req.BasePrice
	}
	return &Appointment{
		PatientCode:     strings.TrimSpace(req.PatientCode),
		PatientID:       req.PatientID,
		RequestedBy:     req.RequestedBy,
		SpecialistRef:   req.SpecialistRef,
		AppointmentType: req.AppointmentType,
		ScheduledAt:     at,
		Status:          status,
		BillingStatus:   BillingPending,
		BasePrice:       price,
		Source:          req.Source,
		Notes:           req.Notes,
	}, nil
}

// Create books an appointment. Without an explicit patient code the lowest
// free one is allocated, and the whole insert is retried on a collision.
func (l *Lifecycle) Create(ctx context.Context, req BookingRequest) (*Appointment, error) {
	a, err := l.build(req)
	if err != nil {
		return nil, err
	}
	explicit := a.PatientCode != ""

	insert := func(ctx context.Context) error {
		return l.tx.InTx(ctx, func(ctx context.Context) error {
			if !explicit {
				code, err := l.codes.NextPatientCode(ctx)
				if err != nil {
					return err
				}
				a.PatientCode = code
			}
			if err := l.repo.Insert(ctx, a); err != nil {
				return err
			}
			ev := LifecycleEvent{Appointment: *a, New: a.Status, At: a.CreatedAt}
			db.AfterCommit(ctx, func(ctx context.Context) { l.events.Publish(ctx, ev) })
			return nil
		})
	}

	if explicit {
		err = insert(ctx)
		if apperror.IsRetryable(err) {
			return nil, apperror.Conflict("patient code %s is already in use", a.PatientCode)
		}
	} else {
		err = l.retry.Do(ctx, insert)
	}
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_code", a.PatientCode).
		Str("status", string(a.Status)).
		Msg("appointment created")
	return a, nil
}

// Transition moves a loaded appointment to status to. It must run inside
// the unit of work that loaded a. The event is published once that unit
// commits.
func (l *Lifecycle) Transition(ctx context.Context, a *Appointment, to Status) (LifecycleEvent, error) {
	from := a.Status
	if !CanTransition(from, to) {
		return LifecycleEvent{}, apperror.Conflict("appointment %s cannot move from %s to %s", a.PatientCode, from, to)
	}
	updatedAt, err := l.repo.UpdateStatus(ctx, a.ID, from, to)
	if errors.Is(err, apperror.ErrNotFound) {
		return LifecycleEvent{}, apperror.Conflict("appointment %s was changed concurrently", a.PatientCode)
	}
	if err != nil {
		return LifecycleEvent{}, err
	}
	a.Status = to
	a.UpdatedAt = updatedAt

	ev := LifecycleEvent{Appointment: *a, Old: from, New: to, At: l.now()}
	db.AfterCommit(ctx, func(ctx context.Context) {
		l.metrics.Transition(string(from), string(to))
		l.logger.Info().
			Str("appointment_id", a.ID.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("appointment status changed")
		l.events.Publish(ctx, ev)
	})
	return ev, nil
}

// ChangeStatus locks the appointment and applies one transition.
func (l *Lifecycle) ChangeStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperror.Validation("status", fmt.Sprintf("unknown status %q", to))
	}
	var out *Appointment
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := l.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := l.Transition(ctx, a, to); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// MarkBillingPaid records that the appointment's bill has been settled.
func (l *Lifecycle) MarkBillingPaid(ctx context.Context, id uuid.UUID) error {
	return l.repo.SetBillingStatus(ctx, id, BillingPaid)
}

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.repo.GetByID(ctx, id)
}

// GetForUpdate locks the appointment inside the caller's unit of work.
func (l *Lifecycle) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return l.repo.GetForUpdate(ctx, id)
}

func (l *Lifecycle) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperror.Validation("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	return l.repo.List(ctx, f)
}

func (l *Lifecycle) deleteLocked(ctx context.Context, id uuid.UUID) error {
	a, err := l.repo.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if a.BillingStatus == BillingPaid {
		return apperror.Conflict("appointment %s has a paid bill and cannot be deleted", a.PatientCode)
	}
	if l.unlinker != nil {
		if err := l.unlinker.RemoveUnpaid(ctx, id); err != nil {
			return err
		}
	}
	return l.repo.Delete(ctx, id)
}

// Delete removes an unpaid appointment together with its unpaid billing.
// The freed patient code becomes available to the next booking.
func (l *Lifecycle) Delete(ctx context.Context, id uuid.UUID) error {
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		return l.deleteLocked(ctx, id)
	})
	if err == nil {
		l.logger.Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	}
	return err
}

// DeleteAndCompact deletes every listed appointment and renumbers the rest
// in creation order, all or nothing. It returns how many codes changed.
func (l *Lifecycle) DeleteAndCompact(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, apperror.Validation("ids", "at least one appointment is required")
	}
	var renumbered int
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := l.deleteLocked(ctx, id); err != nil {
				return err
			}
		}
		n, err := l.codes.ReindexPatientCodes(ctx)
		renumbered = n
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info().Int("deleted", len(ids)).Int("renumbered", renumbered).Msg("appointments deleted and compacted")
	return renumbered, nil
}

// Compact renumbers all patient codes P001..PN in creation order.
func (l *Lifecycle) Compact(ctx context.Context) (int, error) {
	var renumbered int
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := l.codes.ReindexPatientCodes(ctx)
		renumbered = n
		return err
	})
	return renumbered, err
}
