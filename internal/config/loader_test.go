package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
datacenter:
  name: test-dc
  version: "1.0"
datasources:
  - name: orders
    type: postgresql
    description: order database
    connection:
      host: localhost
      port: 5432
      database: orders
      username: app
      password: secret
    settings:
      pool_size: 5
      timeout: 10
    tables: [orders, customers]
  - name: catalog
    type: mongodb
    enabled: false
    connection:
      host: localhost
      database: catalog
    collections: [products]
  - name: weather
    type: rest_api
    connection:
      base_url: https://api.example.com
    headers:
      Accept: application/json
    endpoints:
      - name: current
        path: "/current/{{ .city }}"
servers:
  - datasource: orders
    port: 8001
    log_level: DEBUG
  - datasource: weather
    port: 8002
management:
  health_check_interval: 10
  failure_threshold: 4
logging:
  level: debug
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load([]byte(validDoc), WithoutEnv())
	require.NoError(t, err)

	assert.Equal(t, "test-dc", cfg.DataCenter.Name)
	require.Len(t, cfg.DataSources, 3)

	orders := cfg.DataSources[0]
	assert.Equal(t, "orders", orders.Name)
	assert.True(t, orders.Enabled, "enabled defaults to true")
	assert.Equal(t, "localhost", orders.ConnectionString("host"))
	assert.Equal(t, 5, orders.SettingInt("pool_size", 0))
	assert.Equal(t, 10*time.Second, orders.Timeout(time.Minute))
	assert.Equal(t, []interface{}{"orders", "customers"}, orders.Extras["tables"])
	assert.NotContains(t, orders.Extras, "connection")

	assert.False(t, cfg.DataSources[1].Enabled)
	assert.Contains(t, cfg.DataSources[2].Extras, "headers")
	assert.Contains(t, cfg.DataSources[2].Extras, "endpoints")

	assert.Equal(t, 10*time.Second, cfg.Management.HealthCheckInterval)
	assert.Equal(t, 4, cfg.Management.FailureThreshold)
	assert.Equal(t, DefaultHealthCheckTimeout, cfg.Management.HealthCheckTimeout)
	assert.Equal(t, DefaultShutdownGracePeriod, cfg.Management.ShutdownGracePeriod)
	assert.Equal(t, "debug", cfg.Logging.Level)

	enabled := cfg.EnabledDataSources()
	require.Len(t, enabled, 2)
	assert.Equal(t, "weather", enabled[1].Name)

	srv, ok := cfg.Server("orders")
	require.True(t, ok)
	assert.Equal(t, 8001, srv.Port)
}

func TestLoad_EmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := Load(nil, WithoutEnv())
	require.NoError(t, err)
	assert.Empty(t, cfg.DataSources)
	assert.Equal(t, DefaultFailureThreshold, cfg.Management.FailureThreshold)
	assert.Equal(t, DefaultHealthCheckInterval, cfg.Management.HealthCheckInterval)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantSource string
		errMsg     string
	}{
		{
			name: "duplicate data source name",
			doc: `
datasources:
  - name: a
    type: redis
    connection: {host: localhost}
  - name: a
    type: redis
    connection: {host: other}
`,
			wantSource: "a",
			errMsg:     "duplicate data source name",
		},
		{
			name: "unknown type",
			doc: `
datasources:
  - name: legacy
    type: oracle
    connection: {host: db}
`,
			wantSource: "legacy",
			errMsg:     "unsupported type",
		},
		{
			name: "missing required connection field",
			doc: `
datasources:
  - name: files
    type: sqlite
    connection: {}
`,
			wantSource: "files",
			errMsg:     "connection.database_path",
		},
		{
			name: "relational source without database",
			doc: `
datasources:
  - name: users
    type: mysql
    connection: {host: localhost}
`,
			wantSource: "users",
			errMsg:     "connection.database",
		},
		{
			name: "negative setting",
			doc: `
datasources:
  - name: cache
    type: redis
    connection: {host: localhost}
    settings: {pool_size: -1}
`,
			wantSource: "cache",
			errMsg:     "settings.pool_size",
		},
		{
			name: "negative setting written as string",
			doc: `
datasources:
  - name: cache
    type: redis
    connection: {host: localhost}
    settings: {timeout: "-5"}
`,
			wantSource: "cache",
			errMsg:     "settings.timeout",
		},
		{
			name: "non-numeric setting",
			doc: `
datasources:
  - name: cache
    type: redis
    connection: {host: localhost}
    settings: {pool_size: abc}
`,
			wantSource: "cache",
			errMsg:     "settings.pool_size",
		},
		{
			name: "fractional setting",
			doc: `
datasources:
  - name: orders
    type: sqlite
    connection: {database_path: /tmp/orders.db}
    settings: {query_limit: 2.5}
`,
			wantSource: "orders",
			errMsg:     "settings.query_limit",
		},
		{
			name: "bad port",
			doc: `
datasources:
  - name: cache
    type: redis
    connection: {host: localhost, port: 0}
`,
			wantSource: "cache",
			errMsg:     "connection.port",
		},
		{
			name: "server references unknown source",
			doc: `
datasources:
  - name: cache
    type: redis
    connection: {host: localhost}
servers:
  - datasource: ghost
    port: 9000
`,
			wantSource: "ghost",
			errMsg:     "unknown data source",
		},
		{
			name: "server port conflict",
			doc: `
datasources:
  - name: a
    type: redis
    connection: {host: localhost}
  - name: b
    type: redis
    connection: {host: localhost}
servers:
  - datasource: a
    port: 9000
  - datasource: b
    port: 9000
`,
			wantSource: "b",
			errMsg:     "port conflicts",
		},
		{
			name:   "malformed yaml",
			doc:    "datasources: [",
			errMsg: "malformed YAML",
		},
		{
			name:   "not a mapping",
			doc:    "- a\n- b\n",
			errMsg: "must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load([]byte(tt.doc), WithoutEnv())
			require.Error(t, err)
			assert.Nil(t, cfg, "no partial configuration on error")
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.errMsg)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			if tt.wantSource != "" {
				assert.Contains(t, ce.Sources(), tt.wantSource)
			}
		})
	}
}

func TestLoad_NumericSettingsAsStrings(t *testing.T) {
	cfg, err := Load([]byte(`
datasources:
  - name: cache
    type: redis
    connection: {host: localhost}
    settings: {timeout: "7", pool_size: 4, color: blue}
`), WithoutEnv())
	require.NoError(t, err)

	ds := cfg.DataSources[0]
	assert.Equal(t, 7*time.Second, ds.Timeout(time.Second))
	assert.Equal(t, 4, ds.SettingInt("pool_size", 1))
}

func TestLoad_DuplicateTopLevelKey(t *testing.T) {
	doc := `
datasources:
  - name: a
    type: redis
    connection: {host: localhost}
datasources:
  - name: b
    type: redis
    connection: {host: localhost}
`
	cfg, err := Load([]byte(doc), WithoutEnv())
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate key")
	assert.Contains(t, err.Error(), "datasources")
}

func TestLoad_DuplicateNestedKey(t *testing.T) {
	doc := `
datasources:
  - name: a
    type: redis
    connection:
      host: one
      host: two
`
	_, err := Load([]byte(doc), WithoutEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datasources[0].connection.host")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATACENTER_MANAGEMENT__FAILURE_THRESHOLD", "7")
	t.Setenv("DATACENTER_MANAGEMENT__HEALTH_CHECK_TIMEOUT", "2s")
	t.Setenv("DATACENTER_LOGGING__FORMAT", "json")

	cfg, err := Load([]byte(validDoc))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Management.FailureThreshold)
	assert.Equal(t, 2*time.Second, cfg.Management.HealthCheckTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("DATACENTER_MANAGEMENT__FAILURE_THRESHOLD", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("failure-threshold", 3, "")
	flags.Duration("health-check-interval", time.Minute, "")
	require.NoError(t, flags.Parse([]string{"--failure-threshold=9"}))

	cfg, err := Load([]byte(validDoc), WithFlags(flags))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Management.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Management.HealthCheckInterval, "unset flags do not override")
}

func TestLoad_DurationFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("health-check-timeout", time.Second, "")
	require.NoError(t, flags.Parse([]string{"--health-check-timeout=250ms"}))

	cfg, err := Load([]byte(validDoc), WithFlags(flags), WithoutEnv())
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Management.HealthCheckTimeout)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0o600))

	cfg, err := LoadFile(path, WithoutEnv())
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg, err := Load([]byte(validDoc), WithoutEnv())
	require.NoError(t, err)

	out, err := Marshal(cfg)
	require.NoError(t, err)

	again, err := Load(out, WithoutEnv())
	require.NoError(t, err)
	assert.Equal(t, cfg.DataSources[0].Extras["tables"], again.DataSources[0].Extras["tables"])
	assert.Equal(t, cfg.Management, again.Management)
}
