package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/domain/sequence"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db/dbtest"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
)

type memRepo struct {
	txns  map[uuid.UUID]Transaction
	items map[uuid.UUID][]Item
	// failRecompute makes RecomputeTotal fail.
	failRecompute error
}

func newMemRepo() *memRepo {
	return &memRepo{txns: make(map[uuid.UUID]Transaction), items: make(map[uuid.UUID][]Item)}
}

func (m *memRepo) Snapshot() func() {
	txns := make(map[uuid.UUID]Transaction, len(m.txns))
	for k, v := range m.txns {
		txns[k] = v
	}
	items := make(map[uuid.UUID][]Item, len(m.items))
	for k, v := range m.items {
		items[k] = append([]Item(nil), v...)
	}
	return func() { m.txns, m.items = txns, items }
}

func (m *memRepo) InsertTransaction(_ context.Context, t *Transaction) error {
	for _, other := range m.txns {
		if other.TransactionCode == t.TransactionCode {
			return apperror.RetryableConflict("insert billing transaction: identifier already taken", nil)
		}
		if t.Status == StatusPending && other.Status == StatusPending && other.AppointmentID == t.AppointmentID {
			return apperror.Conflict("insert billing transaction: duplicate (billing_transaction_one_pending)")
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	stored := *t
	stored.Items = nil
	m.txns[t.ID] = stored
	return nil
}

func (m *memRepo) InsertItem(_ context.Context, it *Item) (bool, error) {
	for _, existing := range m.items[it.TransactionID] {
		if existing.ItemType == it.ItemType && existing.ItemName == it.ItemName {
			return false, nil
		}
	}
	it.ID = uuid.New()
	it.CreatedAt = time.Now()
	m.items[it.TransactionID] = append(m.items[it.TransactionID], *it)
	return true, nil
}

func (m *memRepo) PendingForUpdate(_ context.Context, apptID uuid.UUID) (*Transaction, error) {
	for _, t := range m.txns {
		if t.AppointmentID == apptID && t.Status == StatusPending {
			t := t
			return &t, nil
		}
	}
	return nil, fmt.Errorf("lock pending billing transaction: %w", apperror.ErrNotFound)
}

func (m *memRepo) HasPending(ctx context.Context, apptID uuid.UUID) (bool, error) {
	_, err := m.PendingForUpdate(ctx, apptID)
	return err == nil, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Transaction, error) {
	t, ok := m.txns[id]
	if !ok {
		return nil, fmt.Errorf("get billing transaction: %w", apperror.ErrNotFound)
	}
	return &t, nil
}

func (m *memRepo) Items(_ context.Context, id uuid.UUID) ([]Item, error) {
	return append([]Item(nil), m.items[id]...), nil
}

func (m *memRepo) RecomputeTotal(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	if m.failRecompute != nil {
		return decimal.Zero, m.failRecompute
	}
	t := m.txns[id]
	sum := decimal.Zero
	for _, it := range m.items[id] {
		sum = sum.Add(it.TotalPrice)
	}
	t.Subtotal = sum
	t.TotalAmount = totalAfterDiscount(sum, t.DiscountAmount)
	m.txns[id] = t
	return t.TotalAmount, nil
}

func (m *memRepo) MarkPaid(_ context.Context, id uuid.UUID, p Payment, paidAt time.Time) error {
	t, ok := m.txns[id]
	if !ok || t.Status != StatusPending {
		return apperror.ErrNotFound
	}
	t.Status = StatusPaid
	t.PaymentMethod = &p.Method
	t.PaidAt = &paidAt
	m.txns[id] = t
	return nil
}

func (m *memRepo) MarkCancelled(_ context.Context, id uuid.UUID) error {
	t, ok := m.txns[id]
	if !ok || t.Status != StatusPending {
		return apperror.ErrNotFound
	}
	t.Status = StatusCancelled
	m.txns[id] = t
	return nil
}

func (m *memRepo) DeleteUnpaid(_ context.Context, apptID uuid.UUID) (int64, error) {
	var n int64
	for id, t := range m.txns {
		if t.AppointmentID == apptID && t.Status != StatusPaid {
			delete(m.txns, id)
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) List(_ context.Context, f Filter) ([]*Transaction, int, error) {
	var out []*Transaction
	for _, t := range m.txns {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AppointmentID != nil && t.AppointmentID != *f.AppointmentID {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionCode < out[j].TransactionCode })
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRepo) itemsFor(apptID uuid.UUID) []Item {
	var out []Item
	for id, t := range m.txns {
		if t.AppointmentID == apptID {
			out = append(out, m.items[id]...)
		}
	}
	return out
}

type monthCounter map[string]int

func (c monthCounter) NextPeriodCode(_ context.Context, prefix string, at time.Time) (string, error) {
	scope := sequence.PeriodScope(prefix, at)
	c[scope]++
	return sequence.PeriodCode(prefix, at, c[scope]), nil
}

func newTestLedger() (*Ledger, *memRepo, *dbtest.Runner) {
	repo := newMemRepo()
	tx := dbtest.NewRunner(repo)
	return NewLedger(repo, monthCounter{}, tx, "TXN", metrics.New(nil), zerolog.Nop()), repo, tx
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func consultation(price string) ItemInput {
	return ItemInput{ItemType: ItemConsultation, ItemName: "consultation", Quantity: 1, UnitPrice: money(price)}
}

func lab(name, price string) ItemInput {
	return ItemInput{ItemType: ItemLaboratory, ItemName: name, Quantity: 1, UnitPrice: money(price)}
}

func testNow() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
