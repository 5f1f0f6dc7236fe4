package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/config"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.BackendDryRun, cfg.Tagging.Backend)
	assert.Equal(t, "us-east-2", cfg.Tagging.DefaultRegion)
	assert.Equal(t, "EC2", cfg.Tagging.DefaultResourceType)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.True(t, cfg.Notifications.Enabled)
	assert.Equal(t, 10, cfg.Notifications.CallTimeoutSeconds)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
}

func TestFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(`
tagging:
  backend: ec2
  default_region: eu-west-1
engine:
  concurrency: 2
api:
  timeout_seconds: 3
`), 0o644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.BackendEC2, cfg.Tagging.Backend)
	assert.Equal(t, "eu-west-1", cfg.Tagging.DefaultRegion)
	assert.Equal(t, "EC2", cfg.Tagging.DefaultResourceType)
	assert.Equal(t, 2, cfg.Engine.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Timeout())
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"http without endpoint": "tagging:\n  backend: http\n",
		"unknown backend":       "tagging:\n  backend: gcp\n",
		"zero concurrency":      "engine:\n  concurrency: 0\n",
		"negative call timeout": "notifications:\n  call_timeout_seconds: -1\n",
		"bad log format":        "log:\n  format: xml\n",
		"relative base path":    "server:\n  base_path: api\n",
		"malformed yaml":        "tagging: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}

	cfg, err := config.FromYAML([]byte("tagging:\n  backend: http\n  endpoint: http://tagger\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://tagger", cfg.Tagging.Endpoint)
}
