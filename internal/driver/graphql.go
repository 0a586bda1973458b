package driver

import (
	"context"
	"net/http"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"
)

func init() {
	Register("graphql", openGraphQL)
}

const typeIntrospection = `query TypeInfo($name: String!) {
  __type(name: $name) {
    name
    kind
    description
    fields { name description type { name kind ofType { name kind } } }
  }
}`

type graphqlDriver struct {
	ds   config.DataSource
	http *httpBackend
}

func openGraphQL(ds config.DataSource) (Driver, error) {
	view, err := backend.DecodeHTTPView(ds)
	if err != nil {
		return nil, err
	}
	endpoint, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	h, err := newHTTPBackend(endpoint, view.Headers, ds.Timeout(30*time.Second))
	if err != nil {
		return nil, err
	}
	return &graphqlDriver{ds: ds, http: h}, nil
}

func (d *graphqlDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	if tool != "graphql_query" {
		return nil, unknownTool(tool)
	}
	var in struct {
		Query         string         `json:"query"`
		Variables     map[string]any `json:"variables"`
		OperationName string         `json:"operation_name"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if err := required("query", in.Query); err != nil {
		return nil, err
	}
	return d.query(ctx, in.Query, in.Variables, in.OperationName)
}

// ReadResource introspects the declared type.
func (d *graphqlDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	return d.query(ctx, typeIntrospection, map[string]any{"name": res.Target}, "TypeInfo")
}

func (d *graphqlDriver) Close() error {
	d.http.client.CloseIdleConnections()
	return nil
}

func (d *graphqlDriver) query(ctx context.Context, query string, variables map[string]any, operation string) (any, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	if operation != "" {
		payload["operationName"] = operation
	}

	resp, err := d.http.do(ctx, http.MethodPost, d.http.resolve("", nil), payload)
	if err != nil {
		return nil, err
	}
	body := jsonBody(resp)
	out := map[string]any{"data": body["data"]}
	if errs, ok := body["errors"].([]any); ok && len(errs) > 0 {
		out["errors"] = errs
	}
	return out, nil
}
