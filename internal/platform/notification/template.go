package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template is a title/message pair with {{key}} placeholders.
type Template struct {
	ID      string
	Title   string
	Message string
}

// TemplateEngine renders registered templates. Safe for concurrent use.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:      "appointment-confirmed",
		Title:   "Appointment confirmed",
		Message: "Your {{appointment_type}} appointment ({{patient_code}}) on {{date}} at {{time}} has been confirmed.",
	},
	{
		ID:      "appointment-completed",
		Title:   "Appointment completed",
		Message: "Your {{appointment_type}} appointment ({{patient_code}}) on {{date}} is complete. Thank you for visiting.",
	},
	{
		ID:      "appointment-cancelled",
		Title:   "Appointment cancelled",
		Message: "Your {{appointment_type}} appointment ({{patient_code}}) on {{date}} at {{time}} has been cancelled.",
	},
	{
		ID:      "appointment-pending",
		Title:   "Appointment requested",
		Message: "We received your {{appointment_type}} appointment request ({{patient_code}}) for {{date}} at {{time}}.",
	},
	{
		ID:      "bill-paid",
		Title:   "Payment received",
		Message: "Payment of {{amount}} for bill {{transaction_code}} has been received.",
	},
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into template id. Placeholders without a value
// are left as they are.
func (e *TemplateEngine) Render(id string, data map[string]string) (title, message string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Title), r.Replace(t.Message), nil
}
