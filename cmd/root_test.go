package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"datacenter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = `
datacenter:
  name: test
datasources:
  - name: orders
    type: postgresql
    connection:
      host: db.internal
      database: orders
      username: app
      password: hunter2
    tables: [orders, customers]
  - name: sessions
    type: redis
    enabled: false
    connection:
      host: cache.internal
servers:
  - datasource: orders
    port: 8001
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		flags = rootFlags{
			configPath:   config.DefaultConfigFile,
			logLevel:     "info",
			logFormat:    "text",
			outputFormat: "table",
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "datacenter version 1.2.3\n", out)
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))

	_, err := config.Load([]byte("datasources: [{name: x, type: nosql}]"))
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfig, getExitCode(fmt.Errorf("startup: %w", err)))
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o600))

	out, err := execute(t, "validate", "--config", path, "--output", "json")
	require.NoError(t, err)

	var checks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &checks))
	require.Len(t, checks, 2)

	orders := checks[0]
	assert.Equal(t, "orders", orders["name"])
	assert.NotContains(t, orders["connection"], "hunter2")
	assert.Contains(t, orders["connection"], "db.internal")
	assert.Equal(t, float64(8001), orders["port"])
	assert.Equal(t, float64(2), orders["resources"])
	assert.Equal(t, false, checks[1]["enabled"])
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc+testDoc[len("\ndatacenter:\n  name: test\n"):]), 0o600))

	_, err := execute(t, "validate", "--config", path)
	assert.True(t, config.IsConfigError(err), "got %v", err)
}

func TestRejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "validate", "--output", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestExportCommand_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o600))

	out, err := execute(t, "export", "--config", path)
	require.NoError(t, err)

	cfg, err := config.Load([]byte(out), config.WithoutEnv())
	require.NoError(t, err)
	require.Len(t, cfg.DataSources, 2)
	assert.Equal(t, []any{"orders", "customers"}, cfg.DataSources[0].Extras["tables"])
	assert.Equal(t, config.DefaultFailureThreshold, cfg.Management.FailureThreshold)
	assert.Equal(t, config.DefaultHealthCheckInterval, cfg.Management.HealthCheckInterval)
}

func TestExportCommand_JSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0o600))
	target := filepath.Join(dir, "effective.json")

	out, err := execute(t, "export", "--config", path, "-o", "json", "--file", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	sources, ok := doc["datasources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 2)
	assert.Equal(t, "orders", sources[0].(map[string]any)["name"])
	assert.Contains(t, doc, "management")
}
