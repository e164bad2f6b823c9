package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/pricing"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/domain/sequence"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db/dbtest"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// store is one in-memory database shared by every fake repository, so a
// single snapshot covers the whole unit of work.
type store struct {
	appts    map[uuid.UUID]scheduling.Appointment
	visits   map[uuid.UUID]encounter.Visit
	txns     map[uuid.UUID]billing.Transaction
	items    map[uuid.UUID][]billing.Item
	patients map[uuid.UUID]patient.Patient
	counters map[string]int
	clock    time.Time

	// failOpen makes the next billing transaction insert fail.
	failOpen error
}

func newStore() *store {
	return &store{
		appts:    make(map[uuid.UUID]scheduling.Appointment),
		visits:   make(map[uuid.UUID]encounter.Visit),
		txns:     make(map[uuid.UUID]billing.Transaction),
		items:    make(map[uuid.UUID][]billing.Item),
		patients: make(map[uuid.UUID]patient.Patient),
		counters: make(map[string]int),
		clock:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (s *store) Snapshot() func() {
	appts := make(map[uuid.UUID]scheduling.Appointment, len(s.appts))
	for k, v := range s.appts {
		appts[k] = v
	}
	visits := make(map[uuid.UUID]encounter.Visit, len(s.visits))
	for k, v := range s.visits {
		visits[k] = v
	}
	txns := make(map[uuid.UUID]billing.Transaction, len(s.txns))
	for k, v := range s.txns {
		txns[k] = v
	}
	items := make(map[uuid.UUID][]billing.Item, len(s.items))
	for k, v := range s.items {
		items[k] = append([]billing.Item(nil), v...)
	}
	patients := make(map[uuid.UUID]patient.Patient, len(s.patients))
	for k, v := range s.patients {
		patients[k] = v
	}
	counters := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return func() {
		s.appts, s.visits, s.txns, s.items, s.patients = appts, visits, txns, items, patients
		s.counters = counters
	}
}

func (s *store) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

// appointments

type apptRepo struct{ s *store }

func (r apptRepo) Insert(_ context.Context, a *scheduling.Appointment) error {
	for _, other := range r.s.appts {
		if other.PatientCode == a.PatientCode {
			return apperror.RetryableConflict("insert appointment: identifier already taken", nil)
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = r.s.tick()
	a.UpdatedAt = a.CreatedAt
	r.s.appts[a.ID] = *a
	return nil
}

func (r apptRepo) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := r.s.appts[id]
	if !ok {
		return nil, fmt.Errorf("get appointment: %w", apperror.ErrNotFound)
	}
	return &a, nil
}

func (r apptRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r apptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to scheduling.Status) (time.Time, error) {
	a, ok := r.s.appts[id]
	if !ok || a.Status != from {
		return time.Time{}, apperror.ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = r.s.tick()
	r.s.appts[id] = a
	return a.UpdatedAt, nil
}

func (r apptRepo) SetBillingStatus(_ context.Context, id uuid.UUID, st scheduling.BillingStatus) error {
	a, ok := r.s.appts[id]
	if !ok {
		return apperror.ErrNotFound
	}
	a.BillingStatus = st
	r.s.appts[id] = a
	return nil
}

func (r apptRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.s.appts, id)
	for vid, v := range r.s.visits {
		if v.AppointmentID != nil && *v.AppointmentID == id {
			v.AppointmentID = nil
			r.s.visits[vid] = v
		}
	}
	return nil
}

func (r apptRepo) List(context.Context, scheduling.Filter) ([]*scheduling.Appointment, int, error) {
	return nil, 0, nil
}

type fakeCodes struct{ s *store }

func (c fakeCodes) NextPatientCode(context.Context) (string, error) {
	var used []string
	for _, a := range c.s.appts {
		used = append(used, a.PatientCode)
	}
	return sequence.NextAvailable("P", used), nil
}

func (c fakeCodes) ReindexPatientCodes(context.Context) (int, error) { return 0, nil }

func (c fakeCodes) NextPeriodCode(_ context.Context, prefix string, at time.Time) (string, error) {
	scope := sequence.PeriodScope(prefix, at)
	c.s.counters[scope]++
	return sequence.PeriodCode(prefix, at, c.s.counters[scope]), nil
}

// visits

type visitRepo struct{ s *store }

func (r visitRepo) Insert(_ context.Context, v *encounter.Visit) error {
	for _, other := range r.s.visits {
		if v.AppointmentID != nil && other.AppointmentID != nil && *other.AppointmentID == *v.AppointmentID {
			return apperror.Conflict("insert visit: duplicate (visit_appointment_id_key)")
		}
	}
	v.ID = uuid.New()
	v.CreatedAt = r.s.tick()
	r.s.visits[v.ID] = *v
	return nil
}

func (r visitRepo) GetByID(_ context.Context, id uuid.UUID) (*encounter.Visit, error) {
	v, ok := r.s.visits[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &v, nil
}

func (r visitRepo) GetByAppointment(_ context.Context, apptID uuid.UUID) (*encounter.Visit, error) {
	for _, v := range r.s.visits {
		if v.AppointmentID != nil && *v.AppointmentID == apptID {
			return &v, nil
		}
	}
	return nil, apperror.ErrNotFound
}

// billing

type billRepo struct{ s *store }

func (r billRepo) InsertTransaction(_ context.Context, t *billing.Transaction) error {
	if err := r.s.failOpen; err != nil {
		r.s.failOpen = nil
		return err
	}
	for _, other := range r.s.txns {
		if other.Status == billing.StatusPending && other.AppointmentID == t.AppointmentID {
			return apperror.Conflict("insert billing transaction: duplicate (billing_transaction_one_pending)")
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = r.s.tick()
	stored := *t
	stored.Items = nil
	r.s.txns[t.ID] = stored
	return nil
}

func (r billRepo) InsertItem(_ context.Context, it *billing.Item) (bool, error) {
	for _, other := range r.s.items[it.TransactionID] {
		if other.ItemType == it.ItemType && other.ItemName == it.ItemName {
			return false, nil
		}
	}
	it.ID = uuid.New()
	r.s.items[it.TransactionID] = append(r.s.items[it.TransactionID], *it)
	return true, nil
}

func (r billRepo) PendingForUpdate(_ context.Context, apptID uuid.UUID) (*billing.Transaction, error) {
	for _, t := range r.s.txns {
		if t.AppointmentID == apptID && t.Status == billing.StatusPending {
			return &t, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r billRepo) HasPending(ctx context.Context, apptID uuid.UUID) (bool, error) {
	_, err := r.PendingForUpdate(ctx, apptID)
	return err == nil, nil
}

func (r billRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*billing.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r billRepo) GetByID(_ context.Context, id uuid.UUID) (*billing.Transaction, error) {
	t, ok := r.s.txns[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &t, nil
}

func (r billRepo) Items(_ context.Context, id uuid.UUID) ([]billing.Item, error) {
	return r.s.items[id], nil
}

func (r billRepo) RecomputeTotal(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	t := r.s.txns[id]
	sum := decimal.Zero
	for _, it := range r.s.items[id] {
		sum = sum.Add(it.TotalPrice)
	}
	t.Subtotal = sum
	t.TotalAmount = sum.Sub(t.DiscountAmount)
	if t.TotalAmount.IsNegative() {
		t.TotalAmount = decimal.Zero
	}
	r.s.txns[id] = t
	return t.TotalAmount, nil
}

func (r billRepo) MarkPaid(_ context.Context, id uuid.UUID, p billing.Payment, at time.Time) error {
	t := r.s.txns[id]
	t.Status = billing.StatusPaid
	t.PaymentMethod = &p.Method
	t.PaidAt = &at
	r.s.txns[id] = t
	return nil
}

func (r billRepo) MarkCancelled(_ context.Context, id uuid.UUID) error {
	t := r.s.txns[id]
	t.Status = billing.StatusCancelled
	r.s.txns[id] = t
	return nil
}

func (r billRepo) DeleteUnpaid(_ context.Context, apptID uuid.UUID) (int64, error) {
	var n int64
	for id, t := range r.s.txns {
		if t.AppointmentID == apptID && t.Status != billing.StatusPaid {
			delete(r.s.txns, id)
			delete(r.s.items, id)
			n++
		}
	}
	return n, nil
}

func (r billRepo) List(context.Context, billing.Filter) ([]*billing.Transaction, int, error) {
	return nil, 0, nil
}

// patients

type patientRepo struct{ s *store }

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.s.patients[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return &p, nil
}

func (r patientRepo) GetByPhone(_ context.Context, phone string) (*patient.Patient, error) {
	for _, p := range r.s.patients {
		if p.Phone == phone {
			return &p, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r patientRepo) Create(_ context.Context, p *patient.Patient) (bool, error) {
	p.ID = uuid.New()
	p.CreatedAt = r.s.tick()
	r.s.patients[p.ID] = *p
	return true, nil
}

type recordingPublisher struct {
	events []scheduling.LifecycleEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev scheduling.LifecycleEvent) {
	r.events = append(r.events, ev)
}

type recordingSink struct {
	msgs []notification.Message
}

func (s *recordingSink) Submit(msg notification.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

type world struct {
	store     *store
	tx        *dbtest.Runner
	events    *recordingPublisher
	sink      *recordingSink
	lifecycle *scheduling.Lifecycle
	ledger    *billing.Ledger
	orch      *Orchestrator
}

func newWorld() *world {
	s := newStore()
	tx := dbtest.NewRunner(s)
	events := &recordingPublisher{}
	sink := &recordingSink{}
	prices := pricing.NewResolver()
	retry := sequence.Retrier{Attempts: 3}

	ledger := billing.NewLedger(billRepo{s}, fakeCodes{s}, tx, "TXN", nil, zerolog.Nop())
	lifecycle := scheduling.NewLifecycle(scheduling.Deps{
		Repo:     apptRepo{s},
		Codes:    fakeCodes{s},
		Prices:   prices,
		Tx:       tx,
		Retry:    retry,
		Unlinker: ledger,
		Events:   events,
	})
	visits := encounter.NewService(visitRepo{s}, fakeCodes{s}, tx, "VIS")
	orch := NewOrchestrator(Deps{
		Tx:        tx,
		Retry:     retry,
		Lifecycle: lifecycle,
		Visits:    visits,
		Ledger:    ledger,
		Patients:  patient.NewService(patientRepo{s}, "PH"),
		Sink:      sink,
		Templates: notification.NewTemplateEngine(),
		Logger:    zerolog.Nop(),
	})
	return &world{store: s, tx: tx, events: events, sink: sink, lifecycle: lifecycle, ledger: ledger, orch: orch}
}

func (w *world) book(requestedBy *uuid.UUID) *scheduling.Appointment {
	a, err := w.lifecycle.Create(context.Background(), scheduling.BookingRequest{
		AppointmentType: "consultation",
		Date:            "2026-03-10",
		Time:            "09:30",
		SpecialistRef:   uuid.New(),
		Source:          scheduling.SourceOnline,
		RequestedBy:     requestedBy,
	})
	if err != nil {
		panic(err)
	}
	return a
}
