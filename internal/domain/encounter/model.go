package encounter

import (
	"time"

	"github.com/google/uuid"
)

// Visit is the clinical encounter record created when an appointment is
// approved or a walk-in is registered. A follow-up visit hangs off an
// earlier visit instead of an appointment.
type Visit struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	VisitCode     string     `db:"visit_code" json:"visit_code"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	FollowUpOf    *uuid.UUID `db:"follow_up_of" json:"follow_up_of,omitempty"`
	PatientID     *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	StaffRef      *uuid.UUID `db:"staff_ref" json:"staff_ref,omitempty"`
	VisitedAt     time.Time  `db:"visited_at" json:"visited_at"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Seed carries what the caller knows about a visit for an appointment.
type Seed struct {
	AppointmentID uuid.UUID
	PatientID     *uuid.UUID
	StaffRef      *uuid.UUID
	VisitedAt     time.Time
	Notes         *string
}
