package driver

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"
)

func init() {
	Register("elasticsearch", openSearch)
}

type searchDriver struct {
	ds   config.DataSource
	http *httpBackend
}

func openSearch(ds config.DataSource) (Driver, error) {
	base, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	h, err := newHTTPBackend(base, nil, ds.Timeout(30*time.Second))
	if err != nil {
		return nil, err
	}
	return &searchDriver{ds: ds, http: h}, nil
}

func (d *searchDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "search":
		var in struct {
			Index string `json:"index"`
			Query any    `json:"query"`
			Size  int    `json:"size"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("index", in.Index); err != nil {
			return nil, err
		}
		return d.search(ctx, in.Index, in.Query, rowLimit(in.Size, d.ds))

	case "cluster_health":
		resp, err := d.http.do(ctx, http.MethodGet, d.http.resolve("/_cluster/health", nil), nil)
		if err != nil {
			return nil, err
		}
		return jsonBody(resp), nil
	}
	return nil, unknownTool(tool)
}

func (d *searchDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	return d.search(ctx, res.Target, nil, rowLimit(0, d.ds))
}

func (d *searchDriver) Close() error {
	d.http.client.CloseIdleConnections()
	return nil
}

// search posts a query to the index. A string query is run as a
// query_string query; nil matches everything.
func (d *searchDriver) search(ctx context.Context, index string, query any, size int) (any, error) {
	switch q := query.(type) {
	case nil:
		query = map[string]any{"match_all": map[string]any{}}
	case string:
		query = map[string]any{"query_string": map[string]any{"query": q}}
	}
	body := map[string]any{"query": query, "size": size}

	target := d.http.resolve("/"+url.PathEscape(index)+"/_search", nil)
	resp, err := d.http.do(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"hits": []any{}, "total": 0}
	hits, _ := jsonBody(resp)["hits"].(map[string]any)
	if hits == nil {
		return out, nil
	}
	if list, ok := hits["hits"].([]any); ok {
		out["hits"] = list
	}
	switch total := hits["total"].(type) {
	case map[string]any:
		out["total"] = total["value"]
	case float64:
		out["total"] = int(total)
	case string:
		n, _ := strconv.Atoi(total)
		out["total"] = n
	}
	return out, nil
}
