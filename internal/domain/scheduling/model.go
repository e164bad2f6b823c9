package scheduling

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// transitions is the only definition of which status changes are legal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to
// another. Completed and Cancelled are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type BillingStatus string

const (
	BillingPending BillingStatus = "pending"
	BillingPaid    BillingStatus = "paid"
)

type Source string

const (
	SourceWalkIn Source = "walk_in"
	SourceOnline Source = "online"
)

func (s Source) Valid() bool {
	return s == SourceWalkIn || s == SourceOnline
}

type Appointment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientCode     string          `db:"patient_code" json:"patient_code"`
	PatientID       *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	RequestedBy     *uuid.UUID      `db:"requested_by" json:"requested_by,omitempty"`
	SpecialistRef   uuid.UUID       `db:"specialist_ref" json:"specialist_ref"`
	AppointmentType string          `db:"appointment_type" json:"appointment_type"`
	ScheduledAt     time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Status          Status          `db:"status" json:"status"`
	BillingStatus   BillingStatus   `db:"billing_status" json:"billing_status"`
	BasePrice       decimal.Decimal `db:"base_price" json:"base_price"`
	Source          Source          `db:"source" json:"source"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// BookingRequest is an inbound request to book an appointment. Date is
// YYYY-MM-DD and Time is HHMM, HH:MM or HH:MM:SS, both in the clinic's
// timezone.
type BookingRequest struct {
	AppointmentType string           `json:"appointment_type"`
	Date            string           `json:"date"`
	Time            string           `json:"time"`
	SpecialistRef   uuid.UUID        `json:"specialist_ref"`
	PatientCode     string           `json:"patient_code,omitempty"`
	PatientID       *uuid.UUID       `json:"patient_id,omitempty"`
	Source          Source           `json:"source"`
	RequestedBy     *uuid.UUID       `json:"requested_by,omitempty"`
	BasePrice       *decimal.Decimal `json:"base_price,omitempty"`
	Notes           *string          `json:"notes,omitempty"`

	// InitialStatus lets a trusted caller book straight into Confirmed.
	// Never bound from request bodies.
	InitialStatus Status `json:"-"`
}

// LifecycleEvent records a committed status change. Old is empty for a
// newly created appointment.
type LifecycleEvent struct {
	Appointment Appointment
	Old         Status
	New         Status
	At          time.Time
}

type Filter struct {
	Status        Status
	SpecialistRef *uuid.UUID
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
