// Package billing is the ledger for appointment bills. It is the only
// writer of billing transactions, their items and their totals.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
)

var tracer = otel.Tracer("clinicdesk.internal.domain.billing")

// PeriodCoder allocates month-scoped codes such as TXN2026030001.
type PeriodCoder interface {
	NextPeriodCode(ctx context.Context, prefix string, at time.Time) (string, error)
}

type Ledger struct {
	repo    Repository
	codes   PeriodCoder
	tx      db.TxRunner
	prefix  string
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewLedger(repo Repository, codes PeriodCoder, tx db.TxRunner, prefix string, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, codes: codes, tx: tx, prefix: prefix, metrics: m, logger: logger, now: time.Now}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Open creates the appointment's pending bill with its seed items.
func (l *Ledger) Open(ctx context.Context, appointmentID uuid.UUID, seed []ItemInput, d Discount) (t *Transaction, err error) {
	ctx, span := tracer.Start(ctx, "billing.open", trace.WithAttributes(
		attribute.String("clinicdesk.appointment_id", appointmentID.String()),
		attribute.Int("clinicdesk.seed_items", len(seed)),
	))
	defer func() { endSpan(span, err) }()

	items, err := normalizeItems(seed)
	if err != nil {
		return nil, err
	}
	sub := subtotal(items)
	discount, err := discountAmount(sub, d)
	if err != nil {
		return nil, err
	}

	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		open, err := l.repo.HasPending(ctx, appointmentID)
		if err != nil {
			return err
		}
		if open {
			return apperror.Conflict("appointment %s already has an open bill", appointmentID)
		}
		code, err := l.codes.NextPeriodCode(ctx, l.prefix, l.now())
		if err != nil {
			return err
		}
		t = &Transaction{
			TransactionCode:    code,
			AppointmentID:      appointmentID,
			Status:             StatusPending,
			Subtotal:           sub,
			DiscountAmount:     discount,
			DiscountPercentage: d.Percentage,
			TotalAmount:        totalAfterDiscount(sub, discount),
		}
		if err := l.repo.InsertTransaction(ctx, t); err != nil {
			return err
		}
		for _, in := range items {
			it := newItem(t.ID, in)
			if _, err := l.repo.InsertItem(ctx, &it); err != nil {
				return err
			}
			t.Items = append(t.Items, it)
		}
		total, err := l.repo.RecomputeTotal(ctx, t.ID)
		if err != nil {
			return err
		}
		t.TotalAmount = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinicdesk.transaction_code", t.TransactionCode))
	l.logger.Info().
		Str("transaction_code", t.TransactionCode).
		Str("appointment_id", appointmentID.String()).
		Str("total", t.TotalAmount.StringFixed(2)).
		Msg("bill opened")
	return t, nil
}

func newItem(txnID uuid.UUID, in ItemInput) Item {
	return Item{
		TransactionID: txnID,
		ItemType:      in.ItemType,
		ItemName:      in.ItemName,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalPrice:    lineTotal(in),
	}
}

// Merge adds items to the appointment's open bill and returns the new
// total. Items already on the bill are skipped. Without an open bill
// nothing is written and a PreconditionError is returned.
func (l *Ledger) Merge(ctx context.Context, appointmentID uuid.UUID, candidates []ItemInput) (total decimal.Decimal, err error) {
	ctx, span := tracer.Start(ctx, "billing.merge", trace.WithAttributes(
		attribute.String("clinicdesk.appointment_id", appointmentID.String()),
		attribute.Int("clinicdesk.candidates", len(candidates)),
	))
	defer func() { endSpan(span, err) }()

	items, err := normalizeItems(candidates)
	if err != nil {
		return decimal.Zero, err
	}
	if len(items) == 0 {
		return decimal.Zero, apperror.Validation("items", "at least one item is required")
	}

	var inserted, skipped int
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		inserted, skipped = 0, 0
		t, err := l.repo.PendingForUpdate(ctx, appointmentID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Precondition("billing transaction",
				fmt.Sprintf("appointment %s has no open bill", appointmentID))
		}
		if err != nil {
			return err
		}
		for _, in := range items {
			it := newItem(t.ID, in)
			ok, err := l.repo.InsertItem(ctx, &it)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			} else {
				skipped++
			}
		}
		total, err = l.repo.RecomputeTotal(ctx, t.ID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	l.metrics.MergeItems(inserted, skipped)
	span.SetAttributes(attribute.Int("clinicdesk.inserted", inserted), attribute.Int("clinicdesk.skipped", skipped))
	l.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Int("inserted", inserted).
		Int("skipped", skipped).
		Str("total", total.StringFixed(2)).
		Msg("charges merged")
	return total, nil
}

// Finalize records payment. A paid bill never changes again.
func (l *Ledger) Finalize(ctx context.Context, transactionID uuid.UUID, p Payment) (t *Transaction, err error) {
	ctx, span := tracer.Start(ctx, "billing.finalize", trace.WithAttributes(
		attribute.String("clinicdesk.transaction_id", transactionID.String()),
	))
	defer func() { endSpan(span, err) }()

	if p.Method == "" {
		return nil, apperror.Validation("payment_method", "is required")
	}
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		t, err = l.repo.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return apperror.Conflict("bill %s is already %s", t.TransactionCode, t.Status)
		}
		if p.AmountTendered != nil && p.AmountTendered.LessThan(t.TotalAmount) {
			return apperror.Validation("amount_tendered",
				fmt.Sprintf("%s is less than the total %s", p.AmountTendered.StringFixed(2), t.TotalAmount.StringFixed(2)))
		}
		paidAt := l.now()
		if err := l.repo.MarkPaid(ctx, t.ID, p, paidAt); err != nil {
			return err
		}
		t.Status = StatusPaid
		t.PaymentMethod = &p.Method
		t.PaymentReference = p.Reference
		t.AmountTendered = p.AmountTendered
		t.PaidAt = &paidAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info().
		Str("transaction_code", t.TransactionCode).
		Str("total", t.TotalAmount.StringFixed(2)).
		Str("method", p.Method).
		Msg("bill paid")
	return t, nil
}

// Cancel voids a pending bill.
func (l *Ledger) Cancel(ctx context.Context, transactionID uuid.UUID) (*Transaction, error) {
	var t *Transaction
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = l.repo.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return apperror.Conflict("bill %s is already %s", t.TransactionCode, t.Status)
		}
		if err := l.repo.MarkCancelled(ctx, t.ID); err != nil {
			return err
		}
		t.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CancelPending voids the appointment's open bill if it has one.
func (l *Ledger) CancelPending(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	cancelled := false
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := l.repo.PendingForUpdate(ctx, appointmentID)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cancelled = true
		return l.repo.MarkCancelled(ctx, t.ID)
	})
	return cancelled, err
}

// RemoveUnpaid deletes every bill of the appointment that was not paid.
func (l *Ledger) RemoveUnpaid(ctx context.Context, appointmentID uuid.UUID) error {
	n, err := l.repo.DeleteUnpaid(ctx, appointmentID)
	if err != nil {
		return err
	}
	if n > 0 {
		l.logger.Info().Str("appointment_id", appointmentID.String()).Int64("removed", n).Msg("unpaid bills removed")
	}
	return nil
}

// Get returns the bill with its items.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.withItems(ctx, t)
}

// PendingFor returns the appointment's open bill with its items.
func (l *Ledger) PendingFor(ctx context.Context, appointmentID uuid.UUID) (*Transaction, error) {
	open, _, err := l.repo.List(ctx, Filter{Status: StatusPending, AppointmentID: &appointmentID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("appointment %s has no open bill: %w", appointmentID, apperror.ErrNotFound)
	}
	return l.withItems(ctx, open[0])
}

func (l *Ledger) withItems(ctx context.Context, t *Transaction) (*Transaction, error) {
	items, err := l.repo.Items(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Items = items
	return t, nil
}

func (l *Ledger) List(ctx context.Context, f Filter) ([]*Transaction, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperror.Validation("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return l.repo.List(ctx, f)
}
