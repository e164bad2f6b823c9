package encounter

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type repoPG struct {
	pool db.Querier
}

func NewRepoPG(pool db.Querier) Repository {
	return &repoPG{pool: pool}
}

const visitCols = `id, visit_code, appointment_id, follow_up_of, patient_id, staff_ref, visited_at, notes, created_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	if err := row.Scan(&v.ID, &v.VisitCode, &v.AppointmentID, &v.FollowUpOf, &v.PatientID,
		&v.StaffRef, &v.VisitedAt, &v.Notes, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Insert(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO visit (id, visit_code, appointment_id, follow_up_of, patient_id, staff_ref, visited_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		v.ID, v.VisitCode, v.AppointmentID, v.FollowUpOf, v.PatientID, v.StaffRef, v.VisitedAt, v.Notes,
	).Scan(&v.CreatedAt)
	return db.Classify("insert visit", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
	return v, db.Classify("get visit", err)
}

func (r *repoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error) {
	v, err := scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE appointment_id = $1`, appointmentID))
	return v, db.Classify("get visit by appointment", err)
}
