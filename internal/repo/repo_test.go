package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/db"
	"tagflow/internal/domain"
	"tagflow/internal/events"
	"tagflow/internal/migrate"
	"tagflow/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	fixed := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return repo.Repo{DB: conn, Events: events.Writer{Now: fixed}, Now: fixed}
}

func TestFlowUpdateWritesEvent(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_, err := r.InsertPolicy(ctx, domain.Policy{ID: 7, Name: "p", Type: domain.TypeAddTag})
	require.NoError(t, err)

	f, err := r.InsertFlow(ctx, domain.ApprovalFlow{ID: 42, PolicyID: 7, Name: "tag", Type: domain.TypeAddTag, Status: domain.FlowReady})
	require.NoError(t, err)
	assert.Equal(t, int64(42), f.ID)

	done := "2024-01-01T00:00:00Z"
	require.NoError(t, r.UpdateFlow(ctx, 42, domain.FlowUpdate{Status: domain.FlowComplete, CompleteDateTime: &done, UpdatedBy: "alice"}))
	got, err := r.GetFlow(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, got.Status)
	require.NotNil(t, got.CompleteDateTime)
	assert.Nil(t, got.Comment)

	evts, err := r.LatestEvents(ctx, 5, "approval_flow", "42")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "approval_flow.updated", evts[0].Type)
	assert.Equal(t, "alice", evts[0].ActorID)
}

func TestMissingRowsAreNotFound(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	_, err := r.GetFlow(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.UpdateFlow(ctx, 9, domain.FlowUpdate{Status: domain.FlowCancel}), domain.ErrNotFound)
	assert.ErrorIs(t, r.UpdateLog(ctx, 9, domain.LogUpdate{Status: domain.LogCancel}), domain.ErrNotFound)
	assert.ErrorIs(t, r.UpdateFlowResourceStatus(ctx, 9, "Complete"), domain.ErrNotFound)
	assert.ErrorIs(t, r.UpdateResourceTag(ctx, 9, domain.ResourceTagUpdate{Status: domain.TagStatusComplete}), domain.ErrNotFound)
	_, err = r.GetPolicy(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResourceTagSearchFilters(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	res, err := r.InsertResource(ctx, domain.Resource{ID: 101, ResourceID: "i-101"})
	require.NoError(t, err)

	for _, tag := range []domain.ResourceTag{
		{ResourceID: res.ID, CustomerID: domain.Int64(5), AccountID: domain.Int64(9), Key: "Owner", Value: "TeamA", Status: domain.TagStatusComplete, IsActive: true},
		{ResourceID: res.ID, CustomerID: domain.Int64(6), AccountID: domain.Int64(9), Key: "Owner", Value: "TeamA", Status: domain.TagStatusComplete, IsActive: true},
		{ResourceID: res.ID, CustomerID: domain.Int64(5), AccountID: domain.Int64(9), Key: "Owner", Value: "TeamB", Status: domain.TagStatusComplete, IsActive: false},
	} {
		_, err := r.CreateResourceTag(ctx, tag)
		require.NoError(t, err)
	}

	got, err := r.SearchResourceTags(ctx, domain.ResourceTagQuery{ResourceID: res.ID, CustomerID: domain.Int64(5), Key: "Owner", Value: "TeamA", IsActive: domain.Bool(true)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), *got[0].CustomerID)

	all, err := r.SearchResourceTags(ctx, domain.ResourceTagQuery{ResourceID: res.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, r.UpdateResourceTag(ctx, got[0].ID, domain.ResourceTagUpdate{Status: domain.TagStatusComplete, IsActive: false}))
	active, err := r.SearchResourceTags(ctx, domain.ResourceTagQuery{ResourceID: res.ID, IsActive: domain.Bool(true)})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestFlowResourceStatus(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	_, err := r.InsertPolicy(ctx, domain.Policy{ID: 7, Name: "p", Type: domain.TypeAddTag})
	require.NoError(t, err)
	_, err = r.InsertFlow(ctx, domain.ApprovalFlow{ID: 1, PolicyID: 7, Type: domain.TypeAddTag})
	require.NoError(t, err)
	for _, id := range []int64{101, 102, 103} {
		_, err := r.InsertResource(ctx, domain.Resource{ID: id, ResourceID: "i"})
		require.NoError(t, err)
	}
	for _, id := range []int64{101, 102} {
		_, err := r.InsertLog(ctx, domain.ApprovalFlowLog{ApprovalID: 1, ResourceID: id})
		require.NoError(t, err)
	}

	require.NoError(t, r.UpdateFlowResourceStatus(ctx, 1, "Tagged"))
	for id, want := range map[int64]string{101: "Tagged", 102: "Tagged", 103: ""} {
		res, err := r.GetResource(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, res.Status, "resource %d", id)
	}
}
