package backend

import "datacenter/internal/config"

type sqlView struct {
	Tables []Entry `mapstructure:"tables"`
}

func init() {
	for _, t := range []string{"postgresql", "mysql", "sqlite"} {
		typeName := t
		Register(typeName, BuilderFunc{K: KindRelational, F: func(ds config.DataSource) (Plan, error) {
			return relationalPlan(typeName, ds)
		}})
	}
}

func relationalPlan(typeName string, ds config.DataSource) (Plan, error) {
	var v sqlView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(typeName, ds.Name, "table", "application/json", v.Tables)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{
			{
				Name:        "execute_query",
				Description: "Execute a SQL statement and return the resulting rows",
				InputSchema: objectSchema(map[string]any{
					"sql":    prop("string", "SQL statement to execute"),
					"params": arrayOf(map[string]any{}, "Positional bind parameters"),
					"limit":  prop("integer", "Maximum number of rows to return"),
				}, "sql"),
				OutputSchema: rowsOutput,
			},
			{
				Name:        "describe_schema",
				Description: "List the columns of one table, or of every declared table",
				InputSchema: objectSchema(map[string]any{
					"table": prop("string", "Table name; all declared tables when empty"),
				}),
				OutputSchema: objectSchema(map[string]any{
					"tables": prop("object", "Column descriptions keyed by table name"),
				}, "tables"),
			},
			{
				Name:         "list_tables",
				Description:  "List the tables visible to the connection",
				InputSchema:  objectSchema(nil),
				OutputSchema: namesOutput,
			},
		},
	}, nil
}
