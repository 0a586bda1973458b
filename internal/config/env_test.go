package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironmentFor(t *testing.T) {
	ds := DataSource{
		Name: "orders-db",
		Connection: map[string]any{
			"host":    "localhost",
			"port":    5432,
			"options": map[string]any{"sslmode": "disable"},
		},
		Settings: map[string]any{"pool_size": 5},
	}

	env := EnvironmentFor(ds)
	assert.Equal(t, map[string]string{
		"ORDERS_DB_HOST":               "localhost",
		"ORDERS_DB_PORT":               "5432",
		"ORDERS_DB_SETTINGS_POOL_SIZE": "5",
	}, env)

	assert.Equal(t, []string{
		"ORDERS_DB_HOST=localhost",
		"ORDERS_DB_PORT=5432",
		"ORDERS_DB_SETTINGS_POOL_SIZE=5",
	}, EnvironList(ds))
}

func TestSupportedTypes(t *testing.T) {
	types := SupportedTypes()
	assert.Contains(t, types, "postgresql")
	assert.Contains(t, types, "graphql")
	assert.IsIncreasing(t, types)

	fields, ok := RequiredConnectionFields("sqlite")
	assert.True(t, ok)
	assert.Equal(t, []string{"database_path"}, fields)
}
