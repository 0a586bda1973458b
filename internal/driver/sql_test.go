package driver

import (
	"context"
	"testing"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQL(t *testing.T, typeName string, settings map[string]any) (*sqlDriver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ds := config.DataSource{
		Name:     "orders",
		Type:     typeName,
		Settings: settings,
		Extras:   map[string]any{"tables": []any{"customers", "orders"}},
	}
	d, err := newSQLDriver(ds, db, dialects[typeName])
	require.NoError(t, err)
	return d, mock
}

func TestSQLDriver_ExecuteQuery(t *testing.T) {
	d, mock := newMockSQL(t, "postgresql", nil)

	mock.ExpectQuery("SELECT id, name FROM customers WHERE id > $1").
		WithArgs(float64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(11, []byte("ada")).
			AddRow(12, "grace"))

	out, err := d.CallTool(context.Background(), "execute_query", map[string]any{
		"sql":    "SELECT id, name FROM customers WHERE id > $1",
		"params": []any{float64(10)},
	})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, []string{"id", "name"}, result["columns"])
	assert.Equal(t, 2, result["count"])
	assert.Equal(t, false, result["truncated"])
	rows := result["rows"].([]map[string]any)
	assert.Equal(t, "ada", rows[0]["name"], "byte slices are rendered as strings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDriver_ExecuteQueryHonorsLimit(t *testing.T) {
	d, mock := newMockSQL(t, "sqlite", map[string]any{"query_limit": 100})

	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 5; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT n FROM numbers").WillReturnRows(rows)

	out, err := d.CallTool(context.Background(), "execute_query", map[string]any{
		"sql":   "SELECT n FROM numbers",
		"limit": float64(2),
	})
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.Equal(t, 2, result["count"])
	assert.Equal(t, true, result["truncated"])
}

func TestSQLDriver_ExecuteQueryRequiresSQL(t *testing.T) {
	d, _ := newMockSQL(t, "postgresql", nil)
	_, err := d.CallTool(context.Background(), "execute_query", map[string]any{"sql": "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"sql" is required`)
}

func TestSQLDriver_ReadResourceQuotesTable(t *testing.T) {
	tests := []struct {
		typeName string
		want     string
	}{
		{"postgresql", `SELECT * FROM "orders" LIMIT 50`},
		{"mysql", "SELECT * FROM `orders` LIMIT 50"},
		{"sqlite", `SELECT * FROM "orders" LIMIT 50`},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			d, mock := newMockSQL(t, tt.typeName, map[string]any{"query_limit": 50})
			mock.ExpectQuery(tt.want).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

			out, err := d.ReadResource(context.Background(), backend.ResourcePlan{Target: "orders", Category: "table"})
			require.NoError(t, err)
			assert.Equal(t, 1, out.(map[string]any)["count"])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLDriver_DescribeSchemaCoversDeclaredTables(t *testing.T) {
	d, mock := newMockSQL(t, "mysql", nil)
	describe := dialects["mysql"].describe
	for _, table := range []string{"customers", "orders"} {
		mock.ExpectQuery(describe).WithArgs(table).WillReturnRows(
			sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
				AddRow("id", "int", "NO").
				AddRow("note", "text", "YES"))
	}

	out, err := d.CallTool(context.Background(), "describe_schema", nil)
	require.NoError(t, err)

	tables := out.(map[string]any)["tables"].(map[string]any)
	require.Len(t, tables, 2)
	cols := tables["orders"].([]map[string]any)
	assert.Equal(t, "id", cols[0]["name"])
	assert.Equal(t, false, cols[0]["nullable"])
	assert.Equal(t, true, cols[1]["nullable"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDriver_DescribeUnknownTable(t *testing.T) {
	d, mock := newMockSQL(t, "postgresql", nil)
	mock.ExpectQuery(dialects["postgresql"].describe).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	_, err := d.CallTool(context.Background(), "describe_schema", map[string]any{"table": "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLDriver_ListTables(t *testing.T) {
	d, mock := newMockSQL(t, "sqlite", nil)
	mock.ExpectQuery(dialects["sqlite"].listTables).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b"))

	out, err := d.CallTool(context.Background(), "list_tables", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.(map[string]any)["names"])
}

func TestSQLDriver_UnknownTool(t *testing.T) {
	d, _ := newMockSQL(t, "postgresql", nil)
	_, err := d.CallTool(context.Background(), "drop_everything", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}
