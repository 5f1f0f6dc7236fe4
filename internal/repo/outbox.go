package repo

import (
	"context"
	"fmt"

	"tagflow/internal/domain"
)

func (r Repo) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.CreateDateTime == "" {
		n.CreateDateTime = r.now()
	}
	if n.Type == "" {
		n.Type = domain.NotificationTypeApprovalFlow
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(profile_id,general_id,type,message,is_viewed,create_date_time) VALUES (?,?,?,?,?,?)`,
		n.ProfileID, n.GeneralID, n.Type, n.Message, n.IsViewed, n.CreateDateTime)
	if err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return n, err
}

func (r Repo) ListNotifications(ctx context.Context, generalID int64) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,profile_id,general_id,type,message,is_viewed,create_date_time FROM notifications WHERE general_id=? ORDER BY id`, generalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.ProfileID, &n.GeneralID, &n.Type, &n.Message, &n.IsViewed, &n.CreateDateTime); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// SendEmail queues the message in the outbox. A repeated idempotency key is a no-op.
func (r Repo) SendEmail(ctx context.Context, e domain.Email) error {
	if e.To == "" {
		return fmt.Errorf("email recipient required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO email_outbox(recipient,subject,body,idempotency_key,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(idempotency_key) DO NOTHING`, e.To, e.Subject, e.Body, nullable(e.IdempotencyKey), r.now())
	return err
}

func (r Repo) ListEmails(ctx context.Context) ([]domain.Email, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT recipient,subject,body,COALESCE(idempotency_key,'') FROM email_outbox ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Email
	for rows.Next() {
		var e domain.Email
		if err := rows.Scan(&e.To, &e.Subject, &e.Body, &e.IdempotencyKey); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest audit rows, optionally filtered by entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
