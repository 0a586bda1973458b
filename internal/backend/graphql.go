package backend

import "datacenter/internal/config"

func init() {
	Register("graphql", BuilderFunc{K: KindGraphQL, F: graphqlPlan})
}

func graphqlPlan(ds config.DataSource) (Plan, error) {
	v, err := DecodeHTTPView(ds)
	if err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(ds.Type, ds.Name, "schema", "application/json", v.Schemas)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{{
			Name:        "graphql_query",
			Description: "Execute a GraphQL query or mutation",
			InputSchema: objectSchema(map[string]any{
				"query":          prop("string", "GraphQL document"),
				"variables":      prop("object", "Query variables"),
				"operation_name": prop("string", "Operation to run when the document has several"),
			}, "query"),
			OutputSchema: objectSchema(map[string]any{
				"data":   prop("object", "Response data"),
				"errors": arrayOf(map[string]any{"type": "object"}, "GraphQL errors"),
			}),
		}},
	}, nil
}
