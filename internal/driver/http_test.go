package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRESTDriver_EndpointToolRendersPathTemplate(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/v1/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    chi.URLParam(req, "id"),
			"token": req.Header.Get("X-Token"),
			"page":  req.URL.Query().Get("page"),
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	d, err := Open(config.DataSource{
		Name:       "users",
		Type:       "rest_api",
		Connection: map[string]any{"base_url": srv.URL + "/v1"},
		Extras: map[string]any{
			"headers":   map[string]any{"X-Token": "secret"},
			"endpoints": []any{map[string]any{"name": "user", "path": "/users/{{ .id | lower }}"}},
		},
	})
	require.NoError(t, err)
	defer d.Close()

	out, err := d.CallTool(context.Background(), backend.EndpointToolName("user"), map[string]any{
		"params": map[string]any{"id": "ABC"},
		"query":  map[string]any{"page": 2},
	})
	require.NoError(t, err)

	resp := out.(map[string]any)
	assert.Equal(t, http.StatusOK, resp["status"])
	body := resp["body"].(map[string]any)
	assert.Equal(t, "abc", body["id"])
	assert.Equal(t, "secret", body["token"])
	assert.Equal(t, "2", body["page"])
}

func TestRESTDriver_MissingPathParameter(t *testing.T) {
	d, err := Open(config.DataSource{
		Name:       "users",
		Type:       "rest_api",
		Connection: map[string]any{"base_url": "http://127.0.0.1:1"},
		Extras: map[string]any{
			"endpoints": []any{map[string]any{"name": "user", "path": "/users/{{ .id }}"}},
		},
	})
	require.NoError(t, err)

	_, err = d.ReadResource(context.Background(), backend.ResourcePlan{Target: "user"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing path parameter")
}

func TestRESTDriver_HTTPRequestReportsErrorStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/items", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body["name"] == "" || body["name"] == nil {
			http.Error(w, "name required", http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusCreated, body)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	d, err := Open(config.DataSource{Name: "api", Type: "rest_api", Connection: map[string]any{"base_url": srv.URL}})
	require.NoError(t, err)

	out, err := d.CallTool(context.Background(), "http_request", map[string]any{
		"method": "post", "path": "items", "body": map[string]any{"name": "widget"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, out.(map[string]any)["status"])

	_, err = d.CallTool(context.Background(), "http_request", map[string]any{
		"method": "POST", "path": "/items", "body": map[string]any{},
	})
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
	assert.Contains(t, statusErr.Body, "name required")
}

func TestSearchDriver_SearchAndHealth(t *testing.T) {
	var gotQuery map[string]any
	r := chi.NewRouter()
	r.Post("/{index}/_search", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&gotQuery)
		writeJSON(w, http.StatusOK, map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": 42, "relation": "eq"},
				"hits":  []any{map[string]any{"_index": chi.URLParam(req, "index"), "_id": "1"}},
			},
		})
	})
	r.Get("/_cluster/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "green"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	d := &searchDriver{ds: config.DataSource{Name: "logs", Type: "elasticsearch"}}
	d.http, _ = newHTTPBackend(srv.URL, nil, 0)

	out, err := d.CallTool(context.Background(), "search", map[string]any{"index": "events", "query": "level:error", "size": 5})
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.Equal(t, float64(42), result["total"])
	assert.Len(t, result["hits"], 1)
	assert.Equal(t, float64(5), gotQuery["size"])
	assert.Equal(t, map[string]any{"query_string": map[string]any{"query": "level:error"}}, gotQuery["query"])

	health, err := d.CallTool(context.Background(), "cluster_health", nil)
	require.NoError(t, err)
	assert.Equal(t, "green", health.(map[string]any)["status"])
}

func TestGraphQLDriver_QueryAndIntrospection(t *testing.T) {
	var payloads []map[string]any
	r := chi.NewRouter()
	r.Post("/graphql", func(w http.ResponseWriter, req *http.Request) {
		var p map[string]any
		_ = json.NewDecoder(req.Body).Decode(&p)
		payloads = append(payloads, p)
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   map[string]any{"ok": true},
			"errors": []any{map[string]any{"message": "partial"}},
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	d, err := Open(config.DataSource{
		Name:       "catalog",
		Type:       "graphql",
		Connection: map[string]any{"endpoint": srv.URL + "/graphql"},
		Extras:     map[string]any{"schemas": []any{"Product"}},
	})
	require.NoError(t, err)

	out, err := d.CallTool(context.Background(), "graphql_query", map[string]any{
		"query":     "query Q($id: ID!) { product(id: $id) { name } }",
		"variables": map[string]any{"id": "7"},
	})
	require.NoError(t, err)
	result := out.(map[string]any)
	assert.Equal(t, map[string]any{"ok": true}, result["data"])
	assert.Len(t, result["errors"], 1)

	_, err = d.ReadResource(context.Background(), backend.ResourcePlan{Target: "Product"})
	require.NoError(t, err)

	require.Len(t, payloads, 2)
	assert.Equal(t, map[string]any{"id": "7"}, payloads[0]["variables"])
	assert.Equal(t, "TypeInfo", payloads[1]["operationName"])
	assert.Equal(t, map[string]any{"name": "Product"}, payloads[1]["variables"])
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open(config.DataSource{Name: "x", Type: "cassandra"})
	var ute *backend.UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "cassandra", ute.Type)
}

func TestTypes_CoverEveryBuilder(t *testing.T) {
	assert.Equal(t, backend.Types(), Types())
}
