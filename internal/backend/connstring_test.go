package backend

import (
	"testing"

	"datacenter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name   string
		ds     config.DataSource
		redact bool
		want   string
	}{
		{
			name: "postgresql",
			ds: config.DataSource{Type: "postgresql", Connection: map[string]any{
				"host": "db", "port": 5433, "database": "orders", "username": "app", "password": "s3cret"}},
			want: "postgres://app:s3cret@db:5433/orders",
		},
		{
			name: "postgresql redacted with options",
			ds: config.DataSource{Type: "postgresql", Connection: map[string]any{
				"host": "db", "database": "orders", "username": "app", "password": "s3cret",
				"options": map[string]any{"sslmode": "disable"}}},
			redact: true,
			want:   "postgres://app:xxxxx@db:5432/orders?sslmode=disable",
		},
		{
			name: "mysql",
			ds: config.DataSource{Type: "mysql", Connection: map[string]any{
				"host": "db", "database": "shop", "username": "root", "password": "pw"}},
			want: "root:pw@tcp(db:3306)/shop?parseTime=true",
		},
		{
			name: "sqlite",
			ds:   config.DataSource{Type: "sqlite", Connection: map[string]any{"database_path": "/tmp/x.db"}},
			want: "/tmp/x.db",
		},
		{
			name: "mongodb without auth",
			ds: config.DataSource{Type: "mongodb", Connection: map[string]any{
				"host": "mongo", "database": "catalog"}},
			want: "mongodb://mongo:27017/catalog",
		},
		{
			name: "redis password only",
			ds: config.DataSource{Type: "redis", Connection: map[string]any{
				"host": "cache", "password": "pw", "database": 2}},
			want: "redis://:pw@cache:6379/2",
		},
		{
			name: "elasticsearch",
			ds:   config.DataSource{Type: "elasticsearch", Connection: map[string]any{"host": "es", "scheme": "https"}},
			want: "https://es:9200",
		},
		{
			name: "rabbitmq",
			ds: config.DataSource{Type: "rabbitmq", Connection: map[string]any{
				"host": "mq", "username": "guest", "password": "guest"}},
			want: "amqp://guest:guest@mq:5672/",
		},
		{
			name: "rest",
			ds:   config.DataSource{Type: "rest_api", Connection: map[string]any{"base_url": "https://api.example.com/v1"}},
			want: "https://api.example.com/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConnectionString(tt.ds, tt.redact)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectionString_UnknownType(t *testing.T) {
	_, err := ConnectionString(config.DataSource{Name: "x", Type: "oracle"}, false)
	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
}
