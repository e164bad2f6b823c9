package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type Store interface {
	Insert(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userRef uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id, userRef uuid.UUID) error
}

type storePG struct {
	pool db.Querier
}

func NewStorePG(pool db.Querier) Store {
	return &storePG{pool: pool}
}

const notificationCols = `id, user_ref, title, message, related_kind, related_id, read, created_at`

func (s *storePG) Insert(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO notification (id, user_ref, title, message, related_kind, related_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING read, created_at`,
		n.ID, n.UserRef, n.Title, n.Message, string(n.RelatedKind), n.RelatedID).Scan(&n.Read, &n.CreatedAt)
	return db.Classify("insert notification", err)
}

func (s *storePG) ListForUser(ctx context.Context, userRef uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	conn := db.Conn(ctx, s.pool)
	where := ` WHERE user_ref = $1 AND ($2::boolean = FALSE OR read = FALSE)`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM notification`+where, userRef, unreadOnly).Scan(&total); err != nil {
		return nil, 0, db.Classify("count notifications", err)
	}

	rows, err := conn.Query(ctx, `SELECT `+notificationCols+` FROM notification`+where+
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userRef, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, db.Classify("list notifications", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, db.Classify("scan notification", err)
		}
		out = append(out, n)
	}
	return out, total, db.Classify("list notifications", rows.Err())
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var kind string
	if err := row.Scan(&n.ID, &n.UserRef, &n.Title, &n.Message, &kind, &n.RelatedID, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.RelatedKind = Kind(kind)
	return &n, nil
}

// MarkRead flags a notification owned by userRef as read. Other users'
// notifications are reported as not found.
func (s *storePG) MarkRead(ctx context.Context, id, userRef uuid.UUID) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE notification SET read = TRUE WHERE id = $1 AND user_ref = $2`, id, userRef)
	if err != nil {
		return db.Classify("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrNotFound
	}
	return nil
}
