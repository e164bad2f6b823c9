// Package provisioning runs the operations that span appointments, visits
// and bills as single atomic units.
package provisioning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

var tracer = otel.Tracer("clinicdesk.internal.domain.provisioning")

type Deps struct {
	Tx        db.TxRunner
	Retry     scheduling.Retrier
	Lifecycle *scheduling.Lifecycle
	Visits    *encounter.Service
	Ledger    *billing.Ledger
	Patients  *patient.Service
	Sink      scheduling.Submitter
	Templates *notification.TemplateEngine
	Logger    zerolog.Logger
}

// Orchestrator composes the lifecycle, visit and ledger services. Every
// public method is one unit of work: it commits completely or not at all.
type Orchestrator struct {
	tx        db.TxRunner
	retry     scheduling.Retrier
	lifecycle *scheduling.Lifecycle
	visits    *encounter.Service
	ledger    *billing.Ledger
	patients  *patient.Service
	sink      scheduling.Submitter
	templates *notification.TemplateEngine
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{
		tx:        d.Tx,
		retry:     d.Retry,
		lifecycle: d.Lifecycle,
		visits:    d.Visits,
		ledger:    d.Ledger,
		patients:  d.Patients,
		sink:      d.Sink,
		templates: d.Templates,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Provisioned is everything an approval or walk-in created.
type Provisioned struct {
	Appointment *scheduling.Appointment `json:"appointment"`
	Visit       *encounter.Visit        `json:"visit"`
	Bill        *billing.Transaction    `json:"bill"`
}

type WalkInRequest struct {
	Patient  patient.Request           `json:"patient"`
	Booking  scheduling.BookingRequest `json:"booking"`
	StaffRef *uuid.UUID                `json:"staff_ref,omitempty"`
	Discount billing.Discount          `json:"discount"`
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// unit runs fn in one transaction, re-running all of it after an
// identifier collision.
func (o *Orchestrator) unit(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.retry == nil {
		return o.tx.InTx(ctx, fn)
	}
	return o.retry.Do(ctx, func(ctx context.Context) error {
		return o.tx.InTx(ctx, fn)
	})
}

func (o *Orchestrator) consultationSeed(a *scheduling.Appointment) []billing.ItemInput {
	return []billing.ItemInput{{
		ItemType:  billing.ItemConsultation,
		ItemName:  a.AppointmentType,
		Quantity:  1,
		UnitPrice: a.BasePrice,
	}}
}

// provision creates the visit and opens the bill for a confirmed appointment.
func (o *Orchestrator) provision(ctx context.Context, a *scheduling.Appointment, staffRef *uuid.UUID, d billing.Discount) (*Provisioned, error) {
	visit, err := o.visits.CreateForAppointment(ctx, encounter.Seed{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		StaffRef:      staffRef,
		VisitedAt:     o.now(),
	})
	if err != nil {
		return nil, err
	}
	bill, err := o.ledger.Open(ctx, a.ID, o.consultationSeed(a), d)
	if err != nil {
		return nil, err
	}
	return &Provisioned{Appointment: a, Visit: visit, Bill: bill}, nil
}

// ApproveAndProvision confirms a pending appointment, records its visit and
// opens its bill seeded with the consultation charge.
func (o *Orchestrator) ApproveAndProvision(ctx context.Context, appointmentID uuid.UUID, staffRef *uuid.UUID) (out *Provisioned, err error) {
	ctx, span := tracer.Start(ctx, "provisioning.approve", trace.WithAttributes(
		attribute.String("clinicdesk.appointment_id", appointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = o.unit(ctx, func(ctx context.Context) error {
		a, err := o.lifecycle.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if _, err := o.lifecycle.Transition(ctx, a, scheduling.StatusConfirmed); err != nil {
			return err
		}
		out, err = o.provision(ctx, a, staffRef, billing.Discount{})
		return err
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("visit_code", out.Visit.VisitCode).
		Str("transaction_code", out.Bill.TransactionCode).
		Msg("appointment approved and provisioned")
	return out, nil
}

// CreateWalkIn registers the patient if needed and books, confirms and
// provisions an appointment in one step.
func (o *Orchestrator) CreateWalkIn(ctx context.Context, req WalkInRequest) (out *Provisioned, err error) {
	ctx, span := tracer.Start(ctx, "provisioning.walk_in")
	defer func() { endSpan(span, err) }()

	booking := req.Booking
	booking.Source = scheduling.SourceWalkIn
	booking.InitialStatus = scheduling.StatusConfirmed
	if booking.PatientID == nil && req.Patient.Phone == "" {
		return nil, apperror.Validation("patient", "a patient or patient_id is required")
	}

	err = o.unit(ctx, func(ctx context.Context) error {
		b := booking
		if b.PatientID == nil {
			p, err := o.patients.FindOrCreate(ctx, req.Patient)
			if err != nil {
				return err
			}
			b.PatientID = &p.ID
		}
		a, err := o.lifecycle.Create(ctx, b)
		if err != nil {
			return err
		}
		out, err = o.provision(ctx, a, req.StaffRef, req.Discount)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinicdesk.patient_code", out.Appointment.PatientCode))
	o.logger.Info().
		Str("appointment_id", out.Appointment.ID.String()).
		Str("patient_code", out.Appointment.PatientCode).
		Str("transaction_code", out.Bill.TransactionCode).
		Msg("walk-in registered")
	return out, nil
}

// Settle pays the bill and marks its appointment paid.
func (o *Orchestrator) Settle(ctx context.Context, transactionID uuid.UUID, p billing.Payment) (*billing.Transaction, error) {
	var bill *billing.Transaction
	err := o.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		bill, err = o.ledger.Finalize(ctx, transactionID, p)
		if err != nil {
			return err
		}
		if err := o.lifecycle.MarkBillingPaid(ctx, bill.AppointmentID); err != nil {
			return err
		}
		a, err := o.lifecycle.Get(ctx, bill.AppointmentID)
		if err != nil {
			return err
		}
		paid := *bill
		db.AfterCommit(ctx, func(context.Context) { o.notifyPaid(a, &paid) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

func (o *Orchestrator) notifyPaid(a *scheduling.Appointment, bill *billing.Transaction) {
	if o.sink == nil || o.templates == nil || a.RequestedBy == nil {
		return
	}
	title, msg, err := o.templates.Render("bill-paid", map[string]string{
		"amount":           bill.TotalAmount.StringFixed(2),
		"transaction_code": bill.TransactionCode,
	})
	if err != nil {
		o.logger.Warn().Err(err).Msg("render payment notification")
		return
	}
	_ = o.sink.Submit(notification.Message{
		RecipientRef: *a.RequestedBy,
		Title:        title,
		Message:      msg,
		Related:      notification.Related{Kind: notification.KindBillingTransaction, ID: bill.ID},
	})
}

// Cancel cancels the appointment and voids its open bill, if any.
func (o *Orchestrator) Cancel(ctx context.Context, appointmentID uuid.UUID) (*scheduling.Appointment, error) {
	var out *scheduling.Appointment
	err := o.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := o.lifecycle.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.BillingStatus == scheduling.BillingPaid {
			return apperror.Conflict("appointment %s is already paid", a.PatientCode)
		}
		if _, err := o.lifecycle.Transition(ctx, a, scheduling.StatusCancelled); err != nil {
			return err
		}
		if _, err := o.ledger.CancelPending(ctx, a.ID); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
