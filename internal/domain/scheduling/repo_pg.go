package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct {
	pool db.Querier
}

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const apptCols = `id, patient_code, patient_id, requested_by, specialist_ref, appointment_type,
	scheduled_at, status, billing_status, base_price, source, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientCode, &a.PatientID, &a.RequestedBy, &a.SpecialistRef,
		&a.AppointmentType, &a.ScheduledAt, &a.Status, &a.BillingStatus, &a.BasePrice,
		&a.Source, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Insert(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_code, patient_id, requested_by, specialist_ref,
			appointment_type, scheduled_at, status, billing_status, base_price, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientCode, a.PatientID, a.RequestedBy, a.SpecialistRef,
		a.AppointmentType, a.ScheduledAt, string(a.Status), string(a.BillingStatus), a.BasePrice, string(a.Source), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.Classify("insert appointment", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	return a, db.Classify("get appointment", err)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	return a, db.Classify("lock appointment", err)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (time.Time, error) {
	var updatedAt time.Time
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`, id, string(from), string(to)).Scan(&updatedAt)
	return updatedAt, db.Classify("update appointment status", err)
}

func (r *repoPG) SetBillingStatus(ctx context.Context, id uuid.UUID, status BillingStatus) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE appointment SET billing_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return db.Classify("update appointment billing status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update appointment billing status: %w", apperror.ErrNotFound)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return db.Classify("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete appointment: %w", apperror.ErrNotFound)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.SpecialistRef != nil {
		where += fmt.Sprintf(` AND specialist_ref = $%d`, idx)
		args = append(args, *f.SpecialistRef)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND scheduled_at >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND scheduled_at < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify("count appointments", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY scheduled_at, patient_code LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify("list appointments", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, db.Classify("scan appointment", err)
		}
		items = append(items, a)
	}
	return items, total, db.Classify("list appointments", rows.Err())
}
