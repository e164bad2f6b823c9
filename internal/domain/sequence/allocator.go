package sequence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

// Allocator reads and advances identifier namespaces in Postgres. Every
// method must run inside the transaction that consumes the identifier; the
// unique constraints on the code columns catch the races this cannot.
type Allocator struct {
	pool          db.Querier
	patientPrefix string
	loc           *time.Location
}

func NewAllocator(pool db.Querier, patientPrefix string, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	return &Allocator{pool: pool, patientPrefix: patientPrefix, loc: loc}
}

func (a *Allocator) PatientPrefix() string { return a.patientPrefix }

// NextPatientCode gap-fills the appointment patient-code namespace.
func (a *Allocator) NextPatientCode(ctx context.Context) (string, error) {
	rows, err := db.Conn(ctx, a.pool).Query(ctx,
		`SELECT patient_code FROM appointment WHERE patient_code LIKE $1 || '%'`, a.patientPrefix)
	if err != nil {
		return "", db.Classify("read patient codes", err)
	}
	defer rows.Close()

	var used []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return "", db.Classify("scan patient code", err)
		}
		used = append(used, code)
	}
	if err := rows.Err(); err != nil {
		return "", db.Classify("read patient codes", err)
	}
	return NextAvailable(a.patientPrefix, used), nil
}

// NextPeriodCode advances the month counter for prefix and formats the
// result. Counter values are never handed out twice, even when the row that
// used one is later deleted.
func (a *Allocator) NextPeriodCode(ctx context.Context, prefix string, at time.Time) (string, error) {
	at = at.In(a.loc)
	var seq int
	err := db.Conn(ctx, a.pool).QueryRow(ctx,
		`INSERT INTO code_counter (scope, last_value) VALUES ($1, 1)
		 ON CONFLICT (scope) DO UPDATE SET last_value = code_counter.last_value + 1
		 RETURNING last_value`,
		PeriodScope(prefix, at)).Scan(&seq)
	if err != nil {
		return "", db.Classify("advance code counter", err)
	}
	return PeriodCode(prefix, at, seq), nil
}

// ReindexPatientCodes renumbers every appointment P001..PN in creation
// order with a single statement. The patient code constraint is deferred for
// the rest of the transaction so intermediate duplicates are allowed.
func (a *Allocator) ReindexPatientCodes(ctx context.Context) (int, error) {
	conn := db.Conn(ctx, a.pool)
	rows, err := conn.Query(ctx,
		`SELECT id, patient_code, created_at FROM appointment ORDER BY created_at, id FOR UPDATE`)
	if err != nil {
		return 0, db.Classify("read appointments for reindex", err)
	}
	var owners []Owner
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.ID, &o.Code, &o.CreatedAt); err != nil {
			rows.Close()
			return 0, db.Classify("scan appointment for reindex", err)
		}
		owners = append(owners, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, db.Classify("read appointments for reindex", err)
	}

	moves := Reindex(a.patientPrefix, owners)
	if len(moves) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(moves))
	codes := make([]string, len(moves))
	for i, m := range moves {
		ids[i] = m.ID
		codes[i] = m.To
	}

	if _, err := conn.Exec(ctx, `SET CONSTRAINTS `+db.ConstraintPatientCode+` DEFERRED`); err != nil {
		return 0, db.Classify("defer patient code constraint", err)
	}
	if _, err := conn.Exec(ctx,
		`UPDATE appointment SET patient_code = u.code, updated_at = NOW()
		 FROM unnest($1::uuid[], $2::text[]) AS u(id, code)
		 WHERE appointment.id = u.id`, ids, codes); err != nil {
		return 0, db.Classify("reindex patient codes", err)
	}
	return len(moves), nil
}
