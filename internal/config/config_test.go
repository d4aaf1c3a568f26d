package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, visibility.PolicyUnrestricted, cfg.Visibility.SalesManager)
	assert.Equal(t, taskstate.ProgressOverwrite, cfg.Tasks.Progress)
	assert.Equal(t, 2*time.Second, cfg.Notifications.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.MaxBackoff)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
visibility:
  sales_manager: two_hop
tasks:
  progress: monotonic
notifications:
  webhooks:
    - id: ops
      url: https://hooks.example.com/sitework
      secret: s3cret
      recipients: [c1]
      enabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, visibility.PolicyTwoHop, cfg.Visibility.SalesManager)
	assert.Equal(t, taskstate.ProgressMonotonic, cfg.Tasks.Progress)
	require.Len(t, cfg.Notifications.Webhooks, 1)
	assert.Equal(t, []string{"c1"}, cfg.Notifications.Webhooks[0].Recipients)
	assert.Equal(t, 5, cfg.Notifications.MaxAttempts, "untouched keys keep defaults")
}

func TestFromTOML(t *testing.T) {
	cfg, err := FromTOML([]byte(`
[visibility]
sales_manager = "two_hop"

[notifications]
interval = "10s"

[[notifications.webhooks]]
id = "ops"
url = "http://localhost:9000/hook"
enabled = true
timeout = "3s"

[logging]
format = "json"
`))
	require.NoError(t, err)
	assert.Equal(t, visibility.PolicyTwoHop, cfg.Visibility.SalesManager)
	assert.Equal(t, 10*time.Second, cfg.Notifications.Interval)
	assert.Equal(t, 3*time.Second, cfg.Notifications.Webhooks[0].Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad policy":       "visibility:\n  sales_manager: everyone\n",
		"bad progress":     "tasks:\n  progress: sometimes\n",
		"bad base path":    "server:\n  base_path: v0\n",
		"webhook no id":    "notifications:\n  webhooks:\n    - url: http://x\n",
		"webhook bad url":  "notifications:\n  webhooks:\n    - id: a\n      url: not a url\n",
		"duplicate hook":   "notifications:\n  webhooks:\n    - id: a\n      url: http://x\n    - id: a\n      url: http://y\n",
		"backoff inverted": "notifications:\n  base_backoff: 10m\n  max_backoff: 1m\n",
		"log format":       "logging:\n  format: xml\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalPrefersYAMLThenTOML(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitework.toml"), []byte("[tasks]\nprogress = \"monotonic\"\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, taskstate.ProgressMonotonic, cfg.Tasks.Progress)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitework.yml"), []byte("tasks:\n  progress: overwrite\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, taskstate.ProgressOverwrite, cfg.Tasks.Progress)
}
