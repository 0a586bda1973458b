package backend

import "datacenter/internal/config"

type documentView struct {
	Collections []Entry `mapstructure:"collections"`
}

func init() {
	Register("mongodb", BuilderFunc{K: KindDocument, F: documentPlan})
}

func documentPlan(ds config.DataSource) (Plan, error) {
	var v documentView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(ds.Type, ds.Name, "collection", "application/json", v.Collections)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{
			{
				Name:        "find_documents",
				Description: "Find documents in a collection matching a filter",
				InputSchema: objectSchema(map[string]any{
					"collection": prop("string", "Collection name"),
					"filter":     prop("object", "Query filter document"),
					"limit":      prop("integer", "Maximum number of documents"),
				}, "collection"),
				OutputSchema: documentsOutput,
			},
			{
				Name:        "count_documents",
				Description: "Count documents in a collection matching a filter",
				InputSchema: objectSchema(map[string]any{
					"collection": prop("string", "Collection name"),
					"filter":     prop("object", "Query filter document"),
				}, "collection"),
				OutputSchema: objectSchema(map[string]any{
					"count": prop("integer", "Matching documents"),
				}, "count"),
			},
			{
				Name:         "list_collections",
				Description:  "List the collections in the database",
				InputSchema:  objectSchema(nil),
				OutputSchema: namesOutput,
			},
		},
	}, nil
}
