package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// Submitter accepts a message for asynchronous delivery.
type Submitter interface {
	Submit(msg notification.Message) error
}

// Notifier turns lifecycle events into notifications for the user who
// requested the appointment. Walk-ins without a requester are skipped.
type Notifier struct {
	sink      Submitter
	templates *notification.TemplateEngine
	loc       *time.Location
	logger    zerolog.Logger
}

func NewNotifier(sink Submitter, templates *notification.TemplateEngine, loc *time.Location, logger zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{sink: sink, templates: templates, loc: loc, logger: logger}
}

func templateID(s Status) string {
	return "appointment-" + strings.ToLower(string(s))
}

// Publish renders and submits the message. Failures are logged only.
func (n *Notifier) Publish(_ context.Context, ev LifecycleEvent) {
	a := ev.Appointment
	if a.RequestedBy == nil {
		n.logger.Debug().Str("appointment_id", a.ID.String()).Msg("no requester, notification skipped")
		return
	}
	at := a.ScheduledAt.In(n.loc)
	title, message, err := n.templates.Render(templateID(ev.New), map[string]string{
		"appointment_type": a.AppointmentType,
		"patient_code":     a.PatientCode,
		"date":             at.Format("January 2, 2006"),
		"time":             at.Format("3:04 PM"),
	})
	if err != nil {
		n.logger.Warn().Err(err).Str("status", string(ev.New)).Msg("render appointment notification")
		return
	}
	_ = n.sink.Submit(notification.Message{
		RecipientRef: *a.RequestedBy,
		Title:        title,
		Message:      message,
		Related:      notification.Related{Kind: notification.KindAppointment, ID: a.ID},
	})
}
