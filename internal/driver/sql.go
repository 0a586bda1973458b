package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the per-database differences the SQL driver needs.
type dialect struct {
	driverName string
	quote      func(ident string) string
	listTables string
	describe   string
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func backtick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

var dialects = map[string]dialect{
	"postgresql": {
		driverName: "pgx",
		quote:      doubleQuote,
		listTables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() ORDER BY table_name`,
		describe: `SELECT column_name, data_type, is_nullable FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
	},
	"mysql": {
		driverName: "mysql",
		quote:      backtick,
		listTables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() ORDER BY table_name`,
		describe: `SELECT column_name, data_type, is_nullable FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`,
	},
	"sqlite": {
		driverName: "sqlite",
		quote:      doubleQuote,
		listTables: `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		describe: `SELECT name, type, CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END
			FROM pragma_table_info(?) ORDER BY cid`,
	},
}

func init() {
	for typeName := range dialects {
		Register(typeName, openSQL)
	}
}

type sqlDriver struct {
	ds      config.DataSource
	db      *sql.DB
	dialect dialect
	tables  []string
}

func openSQL(ds config.DataSource) (Driver, error) {
	d, ok := dialects[ds.Type]
	if !ok {
		return nil, fmt.Errorf("no SQL dialect for %s", ds.Type)
	}
	dsn, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}
	if n := ds.SettingInt("pool_size", ds.SettingInt("max_connections", 0)); n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLDriver(ds, db, d)
}

func newSQLDriver(ds config.DataSource, db *sql.DB, d dialect) (*sqlDriver, error) {
	var view struct {
		Tables []backend.Entry `mapstructure:"tables"`
	}
	if err := backend.DecodeView(ds.Extras, &view); err != nil {
		return nil, err
	}
	tables := make([]string, len(view.Tables))
	for i, t := range view.Tables {
		tables[i] = t.Name
	}
	return &sqlDriver{ds: ds, db: db, dialect: d, tables: tables}, nil
}

type queryArgs struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	Limit  int    `json:"limit"`
}

func (d *sqlDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "execute_query":
		var in queryArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("sql", strings.TrimSpace(in.SQL)); err != nil {
			return nil, err
		}
		return d.query(ctx, in.SQL, rowLimit(in.Limit, d.ds), in.Params...)

	case "describe_schema":
		var in struct {
			Table string `json:"table"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		tables := d.tables
		if in.Table != "" {
			tables = []string{in.Table}
		}
		out := make(map[string]any, len(tables))
		for _, t := range tables {
			cols, err := d.describe(ctx, t)
			if err != nil {
				return nil, err
			}
			out[t] = cols
		}
		return map[string]any{"tables": out}, nil

	case "list_tables":
		names, err := d.column(ctx, d.dialect.listTables)
		if err != nil {
			return nil, err
		}
		return map[string]any{"names": names}, nil
	}
	return nil, unknownTool(tool)
}

func (d *sqlDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	limit := rowLimit(0, d.ds)
	stmt := fmt.Sprintf("SELECT * FROM %s LIMIT %d", d.dialect.quote(res.Target), limit)
	return d.query(ctx, stmt, limit)
}

func (d *sqlDriver) Close() error {
	return d.db.Close()
}

func (d *sqlDriver) query(ctx context.Context, stmt string, limit int, params ...any) (map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(result) >= limit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = jsonValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"columns":   columns,
		"rows":      result,
		"count":     len(result),
		"truncated": truncated,
	}, nil
}

func (d *sqlDriver) describe(ctx context.Context, table string) ([]map[string]any, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.describe, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s failed: %w", table, err)
	}
	defer rows.Close()

	var cols []map[string]any
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			return nil, err
		}
		cols = append(cols, map[string]any{
			"name":     name,
			"type":     typ,
			"nullable": strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return cols, nil
}

func (d *sqlDriver) column(ctx context.Context, stmt string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// jsonValue converts driver values to something encoding/json renders
// readably; byte slices become strings.
func jsonValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return x
	}
}
