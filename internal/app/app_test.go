package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/app"
	"tagflow/internal/config"
	"tagflow/internal/domain"
	"tagflow/internal/engine"
	"tagflow/internal/records"
	"tagflow/internal/tagging"
)

func TestOpenLocalDryRun(t *testing.T) {
	ctx := context.Background()
	s, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Config: config.Default()})
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Repo)
	assert.IsType(t, &tagging.Recorder{}, s.Tagger)
	assert.Equal(t, 8, s.Engine.Concurrency)
	assert.Equal(t, "us-east-2", s.Engine.Defaults.Region)
}

func TestOpenRemoteHTTPBackend(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
api:
  base_url: http://records.internal/api
  token: tok
tagging:
  backend: http
  endpoint: http://tagger.internal
`))
	require.NoError(t, err)
	s, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg})
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Repo)
	assert.IsType(t, &records.Client{}, s.Store)
	assert.IsType(t, &tagging.HTTPExecutor{}, s.Tagger)

	dry, err := app.NewTagger(context.Background(), cfg, true, nil)
	require.NoError(t, err)
	assert.IsType(t, &tagging.Recorder{}, dry)
}

func TestSeedThenProcess(t *testing.T) {
	ctx := context.Background()
	s, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Config: config.Default()})
	require.NoError(t, err)
	defer s.Close()

	summary, err := app.Seed(ctx, *s.Repo)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, summary.Flows)
	_, err = app.Seed(ctx, *s.Repo)
	require.Error(t, err)

	flow, err := s.Store.GetFlow(ctx, 43)
	require.NoError(t, err)
	res, err := s.Engine.Process(ctx, flow, engine.Caller{ID: "cli"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TagsRemoved)
	assert.Equal(t, 1, res.MissingResourceTags)

	flow, err = s.Store.GetFlow(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowComplete, flow.Status)
}
