package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tagflow/internal/domain"
)

func (r Repo) InsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO policies(id,name,type,organization_id,customer_id,account_id,value1,value2) VALUES (NULLIF(?,0),?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Type, nullableIntPtr(p.OrganizationID), nullableIntPtr(p.CustomerID), nullableIntPtr(p.AccountID), nullable(p.Value1), nullable(p.Value2))
	if err != nil {
		return p, fmt.Errorf("insert policy: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) GetPolicy(ctx context.Context, id int64) (domain.Policy, error) {
	var p domain.Policy
	var orgID, customerID, accountID sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,type,organization_id,customer_id,account_id,COALESCE(value1,''),COALESCE(value2,'') FROM policies WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Type, &orgID, &customerID, &accountID, &p.Value1, &p.Value2)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.OrganizationID = intPtr(orgID)
	p.CustomerID = intPtr(customerID)
	p.AccountID = intPtr(accountID)
	return p, nil
}

func (r Repo) InsertLOV(ctx context.Context, l domain.LOV) (domain.LOV, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO lovs(description,general_id,value1,value2,organization_id,customer_id,account_id) VALUES (?,?,?,?,?,?,?)`,
		l.Description, nullableIntPtr(l.GeneralID), l.Value1, l.Value2, nullableIntPtr(l.OrganizationID), nullableIntPtr(l.CustomerID), nullableIntPtr(l.AccountID))
	if err != nil {
		return l, fmt.Errorf("insert lov: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

// SearchLOV filters by every populated field of q.
func (r Repo) SearchLOV(ctx context.Context, q domain.LOVQuery) ([]domain.LOV, error) {
	var clauses []string
	var args []any
	if q.Description != "" {
		clauses = append(clauses, "description=?")
		args = append(args, q.Description)
	}
	if q.GeneralID != nil {
		clauses = append(clauses, "general_id=?")
		args = append(args, *q.GeneralID)
	}
	if q.CustomerID != nil {
		clauses = append(clauses, "customer_id=?")
		args = append(args, *q.CustomerID)
	}
	if q.AccountID != nil {
		clauses = append(clauses, "account_id=?")
		args = append(args, *q.AccountID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,general_id,value1,value2,organization_id,customer_id,account_id FROM lovs `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LOV
	for rows.Next() {
		var l domain.LOV
		var generalID, orgID, customerID, accountID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.Description, &generalID, &l.Value1, &l.Value2, &orgID, &customerID, &accountID); err != nil {
			return nil, err
		}
		l.GeneralID = intPtr(generalID)
		l.OrganizationID = intPtr(orgID)
		l.CustomerID = intPtr(customerID)
		l.AccountID = intPtr(accountID)
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) InsertResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	out, err := r.DB.ExecContext(ctx, `INSERT INTO resources(id,resource_id,resource_type,type,region,customer_id,account_id,status) VALUES (NULLIF(?,0),?,?,?,?,?,?,?)`,
		res.ID, res.ResourceID, nullable(res.ResourceType), nullable(res.Type), nullable(res.Region), nullableIntPtr(res.CustomerID), nullableIntPtr(res.AccountID), nullable(res.Status))
	if err != nil {
		return res, fmt.Errorf("insert resource: %w", err)
	}
	res.ID, err = out.LastInsertId()
	return res, err
}

func (r Repo) GetResource(ctx context.Context, id int64) (domain.Resource, error) {
	var res domain.Resource
	var customerID, accountID sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,resource_id,COALESCE(resource_type,''),COALESCE(type,''),COALESCE(region,''),customer_id,account_id,COALESCE(status,'') FROM resources WHERE id=?`, id).
		Scan(&res.ID, &res.ResourceID, &res.ResourceType, &res.Type, &res.Region, &customerID, &accountID, &res.Status)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.CustomerID = intPtr(customerID)
	res.AccountID = intPtr(accountID)
	return res, nil
}

func (r Repo) InsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,name,email) VALUES (NULLIF(?,0),?,?)`, p.ID, p.Name, nullable(p.Email))
	if err != nil {
		return p, fmt.Errorf("insert profile: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(email,'') FROM profiles WHERE id=?`, id).Scan(&p.ID, &p.Name, &p.Email)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}
