package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tagflow/internal/domain"
	"tagflow/internal/events"
)

const resourceTagColumns = `id,resource_id,customer_id,account_id,tag_key,tag_value,status,is_active,approval_id,create_date_time,COALESCE(update_date_time,'')`

func (r Repo) CreateResourceTag(ctx context.Context, t domain.ResourceTag) (domain.ResourceTag, error) {
	if t.CreateDateTime == "" {
		t.CreateDateTime = r.now()
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `INSERT INTO resource_tags(resource_id,customer_id,account_id,tag_key,tag_value,status,is_active,approval_id,create_date_time) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ResourceID, nullableIntPtr(t.CustomerID), nullableIntPtr(t.AccountID), t.Key, t.Value, t.Status, t.IsActive, nullableIntPtr(t.ApprovalID), t.CreateDateTime)
	if err != nil {
		return t, fmt.Errorf("insert resource tag: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, err
	}
	if err := r.Events.Append(ctx, tx, "resource_tag.created", "resource_tag", t.ID, "", events.EventPayload{
		"resource_id": t.ResourceID,
		"key":         t.Key,
		"value":       t.Value,
	}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

func (r Repo) SearchResourceTags(ctx context.Context, q domain.ResourceTagQuery) ([]domain.ResourceTag, error) {
	var clauses []string
	var args []any
	if q.ResourceID != 0 {
		clauses = append(clauses, "resource_id=?")
		args = append(args, q.ResourceID)
	}
	if q.CustomerID != nil {
		clauses = append(clauses, "customer_id=?")
		args = append(args, *q.CustomerID)
	}
	if q.AccountID != nil {
		clauses = append(clauses, "account_id=?")
		args = append(args, *q.AccountID)
	}
	if q.Key != "" {
		clauses = append(clauses, "tag_key=?")
		args = append(args, q.Key)
	}
	if q.Value != "" {
		clauses = append(clauses, "tag_value=?")
		args = append(args, q.Value)
	}
	if q.IsActive != nil {
		clauses = append(clauses, "is_active=?")
		args = append(args, *q.IsActive)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+resourceTagColumns+` FROM resource_tags `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ResourceTag
	for rows.Next() {
		var t domain.ResourceTag
		var customerID, accountID, approvalID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ResourceID, &customerID, &accountID, &t.Key, &t.Value, &t.Status, &t.IsActive, &approvalID, &t.CreateDateTime, &t.UpdateDateTime); err != nil {
			return nil, err
		}
		t.CustomerID = intPtr(customerID)
		t.AccountID = intPtr(accountID)
		t.ApprovalID = intPtr(approvalID)
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateResourceTag(ctx context.Context, id int64, u domain.ResourceTagUpdate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE resource_tags SET status=?, is_active=?, update_date_time=? WHERE id=?`, u.Status, u.IsActive, r.now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, "resource_tag.updated", "resource_tag", id, u.UpdatedBy, events.EventPayload{
		"status":    u.Status,
		"is_active": u.IsActive,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
