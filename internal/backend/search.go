package backend

import "datacenter/internal/config"

type searchView struct {
	Indices []Entry `mapstructure:"indices"`
}

func init() {
	Register("elasticsearch", BuilderFunc{K: KindSearch, F: searchPlan})
}

func searchPlan(ds config.DataSource) (Plan, error) {
	var v searchView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(ds.Type, ds.Name, "index", "application/json", v.Indices)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{
			{
				Name:        "search",
				Description: "Run a search request against an index",
				InputSchema: objectSchema(map[string]any{
					"index": prop("string", "Index name"),
					"query": map[string]any{"description": "Query DSL object, or a query string"},
					"size":  prop("integer", "Maximum number of hits"),
				}, "index"),
				OutputSchema: objectSchema(map[string]any{
					"total": prop("integer", "Total matching documents"),
					"hits":  arrayOf(map[string]any{"type": "object"}, "Returned hits"),
				}, "hits"),
			},
			{
				Name:         "cluster_health",
				Description:  "Report cluster health",
				InputSchema:  objectSchema(nil),
				OutputSchema: genericOutput,
			},
		},
	}, nil
}
