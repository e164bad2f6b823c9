package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/domain/pricing"
	"github.com/clinicdesk/clinicdesk/internal/domain/sequence"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db/dbtest"
)

type memRepo struct {
	rows  map[uuid.UUID]*Appointment
	clock time.Time
	// failInsert makes the next Insert fail with this error.
	failInsert error
}

func newMemRepo() *memRepo {
	return &memRepo{
		rows:  make(map[uuid.UUID]*Appointment),
		clock: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) Snapshot() func() {
	saved := make(map[uuid.UUID]Appointment, len(m.rows))
	for id, a := range m.rows {
		saved[id] = *a
	}
	return func() {
		m.rows = make(map[uuid.UUID]*Appointment, len(saved))
		for id, a := range saved {
			a := a
			m.rows[id] = &a
		}
	}
}

func (m *memRepo) Insert(_ context.Context, a *Appointment) error {
	if err := m.failInsert; err != nil {
		m.failInsert = nil
		return err
	}
	for _, existing := range m.rows {
		if existing.PatientCode == a.PatientCode {
			return apperror.RetryableConflict("insert appointment: identifier already taken", nil)
		}
	}
	m.clock = m.clock.Add(time.Minute)
	a.ID = uuid.New()
	a.CreatedAt, a.UpdatedAt = m.clock, m.clock
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("get appointment: %w", apperror.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (time.Time, error) {
	a, ok := m.rows[id]
	if !ok || a.Status != from {
		return time.Time{}, fmt.Errorf("update appointment status: %w", apperror.ErrNotFound)
	}
	m.clock = m.clock.Add(time.Second)
	a.Status = to
	a.UpdatedAt = m.clock
	return m.clock, nil
}

func (m *memRepo) SetBillingStatus(_ context.Context, id uuid.UUID, status BillingStatus) error {
	a, ok := m.rows[id]
	if !ok {
		return apperror.ErrNotFound
	}
	a.BillingStatus = status
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rows[id]; !ok {
		return apperror.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memRepo) List(_ context.Context, f Filter) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.rows {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientCode < out[j].PatientCode })
	return out, len(out), nil
}

func (m *memRepo) byCode(code string) *Appointment {
	for _, a := range m.rows {
		if a.PatientCode == code {
			return a
		}
	}
	return nil
}

// memCodes allocates over memRepo the way the Postgres allocator does.
type memCodes struct {
	repo *memRepo
	// stale hands out this code once, as if another request had just taken it.
	stale string
}

func (c *memCodes) NextPatientCode(context.Context) (string, error) {
	if c.stale != "" {
		code := c.stale
		c.stale = ""
		return code, nil
	}
	var used []string
	for _, a := range c.repo.rows {
		used = append(used, a.PatientCode)
	}
	return sequence.NextAvailable("P", used), nil
}

func (c *memCodes) ReindexPatientCodes(context.Context) (int, error) {
	var owners []sequence.Owner
	for _, a := range c.repo.rows {
		owners = append(owners, sequence.Owner{ID: a.ID, Code: a.PatientCode, CreatedAt: a.CreatedAt})
	}
	moves := sequence.Reindex("P", owners)
	for _, mv := range moves {
		c.repo.rows[mv.ID].PatientCode = mv.To
	}
	return len(moves), nil
}

type recordingPublisher struct {
	events []LifecycleEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev LifecycleEvent) {
	r.events = append(r.events, ev)
}

type recordingUnlinker struct {
	removed []uuid.UUID
	err     error
}

func (u *recordingUnlinker) RemoveUnpaid(_ context.Context, id uuid.UUID) error {
	if u.err != nil {
		return u.err
	}
	u.removed = append(u.removed, id)
	return nil
}

type fixture struct {
	repo      *memRepo
	codes     *memCodes
	tx        *dbtest.Runner
	events    *recordingPublisher
	unlinker  *recordingUnlinker
	lifecycle *Lifecycle
}

func newFixture() *fixture {
	repo := newMemRepo()
	f := &fixture{
		repo:     repo,
		codes:    &memCodes{repo: repo},
		tx:       dbtest.NewRunner(repo),
		events:   &recordingPublisher{},
		unlinker: &recordingUnlinker{},
	}
	f.lifecycle = NewLifecycle(Deps{
		Repo:     repo,
		Codes:    f.codes,
		Prices:   pricing.NewResolver(),
		Tx:       f.tx,
		Retry:    sequence.Retrier{Attempts: 3},
		Unlinker: f.unlinker,
		Events:   f.events,
	})
	return f
}

func booking() BookingRequest {
	return BookingRequest{
		AppointmentType: "consultation",
		Date:            "2026-03-10",
		Time:            "0930",
		SpecialistRef:   uuid.New(),
		Source:          SourceOnline,
	}
}
