package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/db"
	"tagflow/internal/domain"
	"tagflow/internal/engine"
	"tagflow/internal/metrics"
	"tagflow/internal/migrate"
	"tagflow/internal/notify"
	"tagflow/internal/records"
	"tagflow/internal/repo"
	"tagflow/internal/tagging"
)

const testSecret = "test-secret"

type testServer struct {
	URL  string
	Repo repo.Repo
	Tags *tagging.Recorder
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.New(conn)

	rec := &tagging.Recorder{}
	eng := engine.New(r, rec, notify.Notifier{
		Planner:    notify.Planner{Directory: r},
		Dispatcher: notify.NewDispatcher(r, 2, 0, nil),
	}, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	handler, err := New(Config{Repo: r, Engine: &eng, BasePath: "/api", Auth: AuthConfig{JWTSecret: testSecret}, Gatherer: reg})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	seed(t, r)
	return testServer{URL: srv.URL, Repo: r, Tags: rec}
}

func seed(t *testing.T, r repo.Repo) {
	t.Helper()
	ctx := context.Background()
	_, err := r.InsertProfile(ctx, domain.Profile{ID: 1, Name: "Owner", Email: "owner@example.com"})
	require.NoError(t, err)
	_, err = r.InsertPolicy(ctx, domain.Policy{ID: 7, Name: "tag prod", Type: domain.TypeAddTag, CustomerID: domain.Int64(5), AccountID: domain.Int64(9)})
	require.NoError(t, err)
	_, err = r.InsertFlow(ctx, domain.ApprovalFlow{ID: 42, PolicyID: 7, Name: "tag prod", Type: domain.TypeAddTag, Status: domain.FlowReady, CreatedByID: 1})
	require.NoError(t, err)
	_, err = r.InsertParticipant(ctx, domain.ApprovalFlowParticipant{ApprovalID: 42, ProfileID: 11, ParticipantEmail: "a@example.com", Status: domain.ParticipantComplete})
	require.NoError(t, err)
	for _, id := range []int64{101, 102} {
		_, err = r.InsertResource(ctx, domain.Resource{ID: id, ResourceID: fmt.Sprintf("i-%d", id), CustomerID: domain.Int64(5), AccountID: domain.Int64(9)})
		require.NoError(t, err)
		_, err = r.InsertLog(ctx, domain.ApprovalFlowLog{ApprovalID: 42, ResourceID: id, CustomerID: domain.Int64(5), AccountID: domain.Int64(9), Status: domain.LogReady})
		require.NoError(t, err)
	}
	_, err = r.InsertLOV(ctx, domain.LOV{Description: domain.LOVKeyValue, GeneralID: domain.Int64(42), Value1: "Environment", Value2: "Prod", CustomerID: domain.Int64(5), AccountID: domain.Int64(9)})
	require.NoError(t, err)
}

func token(t *testing.T, perms ...string) string {
	t.Helper()
	if len(perms) == 0 {
		perms = AllPermissions
	}
	tok, err := IssueToken(testSecret, "ops@example.com", perms, time.Hour)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, method, url, tok string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "tagflow_http_requests_total")
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/api/ApprovalFlow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/api/ApprovalFlow", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Error.Code)
}

func TestWriteNeedsPermission(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPut, srv.URL+"/api/ApprovalFlowLog/1", token(t, PermRead), domain.LogUpdate{Status: domain.LogComplete})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	env := decodeError(t, data)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, PermWrite, env.Error.Details["permission"])
}

func TestNotFoundEnvelope(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/api/Policy/999", token(t), nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Error.Code)

	_, err := records.New(srv.URL+"/api", token(t)).GetPolicy(context.Background(), 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngineOverRecordClient(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	client := records.New(srv.URL+"/api", token(t))
	rec := &tagging.Recorder{}
	eng := engine.New(client, rec, notify.Notifier{
		Planner:    notify.Planner{Directory: client},
		Dispatcher: notify.NewDispatcher(client, 2, 0, nil),
	}, nil)

	flow, err := client.GetFlow(ctx, 42)
	require.NoError(t, err)
	res, err := eng.Process(ctx, flow, engine.Caller{ID: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TagsApplied)
	assert.Equal(t, 2, res.Notifications.Notifications)
	assert.Empty(t, res.Notifications.Failures)

	stored, err := srv.Repo.GetFlow(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, stored.Status)
	tags, err := client.SearchResourceTags(ctx, domain.ResourceTagQuery{ResourceID: 101, IsActive: domain.Bool(true)})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Environment", tags[0].Key)
	logs, err := client.SearchLogs(ctx, 42)
	require.NoError(t, err)
	for _, l := range logs {
		assert.Equal(t, domain.LogComplete, l.Status)
	}

	events, err := client.LatestEvents(ctx, 50, "approval_flow", "42")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "ops@example.com", events[0].ActorID)
}

func TestFlowActionRoutes(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/api/ApprovalFlow/42/cancel", tok, CancelRequest{Reason: "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", decodeError(t, data).Error.Code)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/api/ApprovalFlow/42/process", token(t, PermRead), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/api/ApprovalFlow/42/process", tok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out FlowActionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, domain.FlowComplete, out.Result.Flow.Status)
	assert.Len(t, srv.Tags.Creates(), 2)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/api/ApprovalFlow/42/process", tok, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "not_actionable", decodeError(t, data).Error.Code)
}

func TestResourceTagRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/api/ResourceTag", tok, domain.ResourceTag{
		ResourceID: 101, Key: "Owner", Value: "TeamA", Status: domain.TagStatusComplete, IsActive: true,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created domain.ResourceTag
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotZero(t, created.ID)

	res, _ = doJSON(t, http.MethodPut, srv.URL+"/api/ResourceTag/"+jsonID(created.ID), tok, domain.ResourceTagUpdate{Status: domain.TagStatusComplete, IsActive: false})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/api/ResourceTag/search?resourceId=101&isActive=true", tok, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list ResourceTagList
	require.NoError(t, json.Unmarshal(data, &list))
	assert.NotNil(t, list.Items)
	assert.Empty(t, list.Items)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
