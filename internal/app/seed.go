package app

import (
	"context"
	"fmt"

	"tagflow/internal/domain"
	"tagflow/internal/repo"
)

// SeedSummary lists the demo flows written by Seed.
type SeedSummary struct {
	Flows []int64 `json:"flows"`
}

// Seed writes a small demo dataset: an AddTag flow (42) over two resources and
// a DeleteTag flow (43) over one, both Ready.
func Seed(ctx context.Context, r repo.Repo) (SeedSummary, error) {
	if _, err := r.GetFlow(ctx, 42); err == nil {
		return SeedSummary{}, fmt.Errorf("workspace already seeded")
	}
	customer, account := domain.Int64(5), domain.Int64(9)
	steps := []func() error{
		func() error {
			for _, p := range []domain.Profile{
				{ID: 1, Name: "Submitter", Email: "submitter@example.com"},
				{ID: 11, Name: "Approver One", Email: "approver1@example.com"},
				{ID: 12, Name: "Approver Two", Email: "approver2@example.com"},
			} {
				if _, err := r.InsertProfile(ctx, p); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, p := range []domain.Policy{
				{ID: 7, Name: "Tag production", Type: domain.TypeAddTag, CustomerID: customer, AccountID: account},
				{ID: 8, Name: "Remove team owner", Type: domain.TypeDeleteTag, CustomerID: customer, AccountID: account},
			} {
				if _, err := r.InsertPolicy(ctx, p); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			for _, res := range []domain.Resource{
				{ID: 101, ResourceID: "i-0a1b2c3d4e5f60101", ResourceType: "EC2", CustomerID: customer, AccountID: account},
				{ID: 102, ResourceID: "i-0a1b2c3d4e5f60102", Region: "us-west-2", CustomerID: customer, AccountID: account},
				{ID: 201, ResourceID: "i-0a1b2c3d4e5f60201", CustomerID: customer, AccountID: account},
			} {
				if _, err := r.InsertResource(ctx, res); err != nil {
					return err
				}
			}
			return nil
		},
		func() error {
			return seedFlow(ctx, r, domain.ApprovalFlow{ID: 42, PolicyID: 7, Name: "Tag production fleet", Type: domain.TypeAddTag}, []int64{101, 102}, customer, account)
		},
		func() error {
			return seedFlow(ctx, r, domain.ApprovalFlow{ID: 43, PolicyID: 8, Name: "Drop TeamA owner tag", Type: domain.TypeDeleteTag}, []int64{201}, customer, account)
		},
		func() error {
			if _, err := r.InsertLOV(ctx, domain.LOV{Description: domain.LOVKeyValue, GeneralID: domain.Int64(42), Value1: "Environment", Value2: "Prod", CustomerID: customer, AccountID: account}); err != nil {
				return err
			}
			_, err := r.InsertLOV(ctx, domain.LOV{Description: domain.LOVKeyValueDelete, Value1: "Owner", Value2: "TeamA"})
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return SeedSummary{}, fmt.Errorf("seed: %w", err)
		}
	}
	return SeedSummary{Flows: []int64{42, 43}}, nil
}

func seedFlow(ctx context.Context, r repo.Repo, f domain.ApprovalFlow, resources []int64, customer, account *int64) error {
	f.Status = domain.FlowReady
	f.CreatedByID = 1
	f, err := r.InsertFlow(ctx, f)
	if err != nil {
		return err
	}
	for _, pid := range []int64{11, 12} {
		if _, err := r.InsertParticipant(ctx, domain.ApprovalFlowParticipant{
			ApprovalID:       f.ID,
			ProfileID:        pid,
			ParticipantEmail: fmt.Sprintf("approver%d@example.com", pid-10),
			Status:           domain.ParticipantComplete,
		}); err != nil {
			return err
		}
	}
	for _, rid := range resources {
		if _, err := r.InsertLog(ctx, domain.ApprovalFlowLog{ApprovalID: f.ID, ResourceID: rid, CustomerID: customer, AccountID: account, Status: domain.LogReady}); err != nil {
			return err
		}
	}
	return nil
}
