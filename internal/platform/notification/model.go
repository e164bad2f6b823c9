// Package notification delivers user-facing status messages outside the
// business transaction that caused them. Every accepted message becomes one
// persisted row for its recipient plus a best-effort real-time push.
package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags the entity a notification points back to.
type Kind string

const (
	KindAppointment        Kind = "appointment"
	KindVisit              Kind = "visit"
	KindBillingTransaction Kind = "billing_transaction"
)

// Related is a tagged reference to the entity a notification is about.
// Readers resolve ID according to Kind.
type Related struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// Message is what producers submit.
type Message struct {
	RecipientRef uuid.UUID
	Title        string
	Message      string
	Related      Related
}

func (m Message) validate() error {
	if m.RecipientRef == uuid.Nil {
		return fmt.Errorf("recipient is required")
	}
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Notification is the persisted row owned by the recipient.
type Notification struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserRef     uuid.UUID `db:"user_ref" json:"user_ref"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	RelatedKind Kind      `db:"related_kind" json:"related_kind"`
	RelatedID   uuid.UUID `db:"related_id" json:"related_id"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (n *Notification) Related() Related {
	return Related{Kind: n.RelatedKind, ID: n.RelatedID}
}

// DeliveryError reports a message that could not be persisted. It never
// leaves this package's consumer loop except through Deliver.
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
