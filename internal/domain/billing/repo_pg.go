package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct {
	pool db.Querier
}

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const txnCols = `id, transaction_code, appointment_id, status, subtotal, discount_amount, discount_percentage,
	total_amount, payment_method, payment_reference, amount_tendered, paid_at, created_at, updated_at`

const itemCols = `id, transaction_id, item_type, item_name, quantity, unit_price, total_price, created_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	if err := row.Scan(&t.ID, &t.TransactionCode, &t.AppointmentID, &t.Status, &t.Subtotal,
		&t.DiscountAmount, &t.DiscountPercentage, &t.TotalAmount, &t.PaymentMethod,
		&t.PaymentReference, &t.AmountTendered, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) InsertTransaction(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO billing_transaction (id, transaction_code, appointment_id, status, subtotal,
			discount_amount, discount_percentage, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		t.ID, t.TransactionCode, t.AppointmentID, string(t.Status), t.Subtotal,
		t.DiscountAmount, t.DiscountPercentage, t.TotalAmount,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	return db.Classify("insert billing transaction", err)
}

func (r *repoPG) InsertItem(ctx context.Context, it *Item) (bool, error) {
	id := uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO billing_transaction_item (id, transaction_id, item_type, item_name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id, item_type, item_name) DO NOTHING
		RETURNING created_at`,
		id, it.TransactionID, string(it.ItemType), it.ItemName, it.Quantity, it.UnitPrice, it.TotalPrice,
	).Scan(&it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.Classify("insert billing item", err)
	}
	it.ID = id
	return true, nil
}

func (r *repoPG) PendingForUpdate(ctx context.Context, appointmentID uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txnCols+` FROM billing_transaction
		 WHERE appointment_id = $1 AND status = 'pending' FOR UPDATE`, appointmentID))
	return t, db.Classify("lock pending billing transaction", err)
}

func (r *repoPG) HasPending(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_transaction WHERE appointment_id = $1 AND status = 'pending')`,
		appointmentID).Scan(&exists)
	return exists, db.Classify("check pending billing transaction", err)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txnCols+` FROM billing_transaction WHERE id = $1 FOR UPDATE`, id))
	return t, db.Classify("lock billing transaction", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+txnCols+` FROM billing_transaction WHERE id = $1`, id))
	return t, db.Classify("get billing transaction", err)
}

func (r *repoPG) Items(ctx context.Context, transactionID uuid.UUID) ([]Item, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+itemCols+` FROM billing_transaction_item WHERE transaction_id = $1 ORDER BY created_at, item_name`,
		transactionID)
	if err != nil {
		return nil, db.Classify("list billing items", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.ItemType, &it.ItemName, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, db.Classify("scan billing item", err)
		}
		items = append(items, it)
	}
	return items, db.Classify("list billing items", rows.Err())
}

func (r *repoPG) RecomputeTotal(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE billing_transaction t
		SET subtotal = s.sum,
		    total_amount = GREATEST(s.sum - t.discount_amount, 0),
		    updated_at = NOW()
		FROM (SELECT COALESCE(SUM(total_price), 0) AS sum
		      FROM billing_transaction_item WHERE transaction_id = $1) s
		WHERE t.id = $1
		RETURNING t.total_amount`, id).Scan(&total)
	return total, db.Classify("recompute billing total", err)
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, p Payment, paidAt time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE billing_transaction
		SET status = 'paid', payment_method = $2, payment_reference = $3, amount_tendered = $4,
		    paid_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, p.Method, p.Reference, p.AmountTendered, paidAt)
	if err != nil {
		return db.Classify("mark billing transaction paid", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark billing transaction paid: %w", apperror.ErrNotFound)
	}
	return nil
}

func (r *repoPG) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE billing_transaction SET status = 'cancelled', updated_at = NOW() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return db.Classify("cancel billing transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cancel billing transaction: %w", apperror.ErrNotFound)
	}
	return nil
}

func (r *repoPG) DeleteUnpaid(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM billing_transaction WHERE appointment_id = $1 AND status <> 'paid'`, appointmentID)
	if err != nil {
		return 0, db.Classify("delete unpaid billing", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Transaction, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.AppointmentID != nil {
		where += fmt.Sprintf(` AND appointment_id = $%d`, idx)
		args = append(args, *f.AppointmentID)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM billing_transaction`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify("count billing transactions", err)
	}

	query := `SELECT ` + txnCols + ` FROM billing_transaction` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify("list billing transactions", err)
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, db.Classify("scan billing transaction", err)
		}
		items = append(items, t)
	}
	return items, total, db.Classify("list billing transactions", rows.Err())
}
