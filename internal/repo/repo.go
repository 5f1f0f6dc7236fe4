package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tagflow/internal/domain"
	"tagflow/internal/events"
)

// Repo is the SQLite-backed system of record. Its method set matches the
// record API client so the engine can run against either.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = domain.ErrNotFound

func New(db *sql.DB) Repo {
	return Repo{DB: db}
}

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

const flowColumns = `id,policy_id,name,type,status,created_by_id,create_date_time,complete_date_time,comment`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (domain.ApprovalFlow, error) {
	var f domain.ApprovalFlow
	var completed, comment sql.NullString
	err := row.Scan(&f.ID, &f.PolicyID, &f.Name, &f.Type, &f.Status, &f.CreatedByID, &f.CreateDateTime, &completed, &comment)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.CompleteDateTime = stringPtr(completed)
	f.Comment = stringPtr(comment)
	return f, nil
}

func (r Repo) InsertFlow(ctx context.Context, f domain.ApprovalFlow) (domain.ApprovalFlow, error) {
	if f.CreateDateTime == "" {
		f.CreateDateTime = r.now()
	}
	if f.Status == "" {
		f.Status = domain.FlowSubmitted
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO approval_flows(id,policy_id,name,type,status,created_by_id,create_date_time,complete_date_time,comment) VALUES (NULLIF(?,0),?,?,?,?,?,?,?,?)`,
		f.ID, f.PolicyID, f.Name, f.Type, f.Status, f.CreatedByID, f.CreateDateTime, nullableStringPtr(f.CompleteDateTime), nullableStringPtr(f.Comment))
	if err != nil {
		return f, fmt.Errorf("insert approval flow: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return f, err
}

func (r Repo) GetFlow(ctx context.Context, id int64) (domain.ApprovalFlow, error) {
	return scanFlow(r.DB.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM approval_flows WHERE id=?`, id))
}

func (r Repo) ListFlows(ctx context.Context, status string) ([]domain.ApprovalFlow, error) {
	query := `SELECT ` + flowColumns + ` FROM approval_flows`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalFlow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// UpdateFlow overwrites status, completeDateTime and comment. It does not
// guard transitions; the record store accepts whatever the caller writes.
func (r Repo) UpdateFlow(ctx context.Context, id int64, u domain.FlowUpdate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	fields := []string{"status=?", "complete_date_time=?"}
	args := []any{u.Status, nullableStringPtr(u.CompleteDateTime)}
	if u.Comment != nil {
		fields = append(fields, "comment=?")
		args = append(args, *u.Comment)
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE approval_flows SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	payload := events.EventPayload{"status": u.Status}
	if u.Comment != nil {
		payload["comment"] = *u.Comment
	}
	if err := r.Events.Append(ctx, tx, "approval_flow.updated", "approval_flow", id, u.UpdatedBy, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateFlowResourceStatus sets the status of every resource referenced by the flow's logs.
func (r Repo) UpdateFlowResourceStatus(ctx context.Context, flowID int64, status string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM approval_flows WHERE id=?`, flowID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE resources SET status=? WHERE id IN (SELECT resource_id FROM approval_flow_logs WHERE approval_id=?)`, status, flowID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if err := r.Events.Append(ctx, tx, "approval_flow.resources.updated", "approval_flow", flowID, "", events.EventPayload{"status": status, "resources": n}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) InsertParticipant(ctx context.Context, p domain.ApprovalFlowParticipant) (domain.ApprovalFlowParticipant, error) {
	if p.Status == "" {
		p.Status = domain.ParticipantPending
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO approval_flow_participants(approval_id,profile_id,participant_email,status,comment,update_date_time) VALUES (?,?,?,?,?,?)`,
		p.ApprovalID, p.ProfileID, p.ParticipantEmail, p.Status, nullable(p.Comment), nullable(p.UpdateDateTime))
	if err != nil {
		return p, fmt.Errorf("insert participant: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) ListParticipants(ctx context.Context, flowID int64) ([]domain.ApprovalFlowParticipant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,approval_id,profile_id,participant_email,status,COALESCE(comment,''),COALESCE(update_date_time,'') FROM approval_flow_participants WHERE approval_id=? ORDER BY id`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalFlowParticipant
	for rows.Next() {
		var p domain.ApprovalFlowParticipant
		if err := rows.Scan(&p.ID, &p.ApprovalID, &p.ProfileID, &p.ParticipantEmail, &p.Status, &p.Comment, &p.UpdateDateTime); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertLog(ctx context.Context, l domain.ApprovalFlowLog) (domain.ApprovalFlowLog, error) {
	if l.Status == "" {
		l.Status = domain.LogPending
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO approval_flow_logs(approval_id,resource_id,customer_id,account_id,status,complete_date_time) VALUES (?,?,?,?,?,?)`,
		l.ApprovalID, l.ResourceID, nullableIntPtr(l.CustomerID), nullableIntPtr(l.AccountID), l.Status, nullableStringPtr(l.CompleteDateTime))
	if err != nil {
		return l, fmt.Errorf("insert approval flow log: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

func (r Repo) SearchLogs(ctx context.Context, flowID int64) ([]domain.ApprovalFlowLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,approval_id,resource_id,customer_id,account_id,status,complete_date_time FROM approval_flow_logs WHERE approval_id=? ORDER BY id`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ApprovalFlowLog
	for rows.Next() {
		var l domain.ApprovalFlowLog
		var customerID, accountID sql.NullInt64
		var completed sql.NullString
		if err := rows.Scan(&l.ID, &l.ApprovalID, &l.ResourceID, &customerID, &accountID, &l.Status, &completed); err != nil {
			return nil, err
		}
		l.CustomerID = intPtr(customerID)
		l.AccountID = intPtr(accountID)
		l.CompleteDateTime = stringPtr(completed)
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLog(ctx context.Context, id int64, u domain.LogUpdate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE approval_flow_logs SET status=?, complete_date_time=? WHERE id=?`,
		u.Status, nullableStringPtr(u.CompleteDateTime), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, "approval_flow_log.updated", "approval_flow_log", id, u.UpdatedBy, events.EventPayload{"status": u.Status}); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
