package driver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"
)

func init() {
	Register("rest_api", openREST)
}

type restEndpoint struct {
	backend.RESTEndpoint
	path *template.Template
}

type restDriver struct {
	ds        config.DataSource
	http      *httpBackend
	endpoints map[string]restEndpoint
}

func openREST(ds config.DataSource) (Driver, error) {
	view, err := backend.DecodeHTTPView(ds)
	if err != nil {
		return nil, err
	}
	base, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	h, err := newHTTPBackend(base, view.Headers, ds.Timeout(30*time.Second))
	if err != nil {
		return nil, err
	}

	d := &restDriver{ds: ds, http: h, endpoints: make(map[string]restEndpoint, len(view.Endpoints))}
	for _, ep := range view.Endpoints {
		tmpl, err := backend.ParsePathTemplate(ep.Name, ep.Path)
		if err != nil {
			return nil, err
		}
		d.endpoints[ep.Name] = restEndpoint{RESTEndpoint: ep, path: tmpl}
	}
	return d, nil
}

type requestArgs struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Params map[string]any `json:"params"`
	Query  map[string]any `json:"query"`
	Body   any            `json:"body"`
}

func (d *restDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	var in requestArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	if tool == "http_request" {
		method := strings.ToUpper(in.Method)
		if method == "" {
			method = http.MethodGet
		}
		return d.http.do(ctx, method, d.http.resolve(in.Path, in.Query), in.Body)
	}

	name, ok := strings.CutPrefix(tool, backend.EndpointToolName(""))
	if !ok {
		return nil, unknownTool(tool)
	}
	ep, ok := d.endpoints[name]
	if !ok {
		return nil, unknownTool(tool)
	}
	return d.call(ctx, ep, in.Params, in.Query, in.Body)
}

func (d *restDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	ep, ok := d.endpoints[res.Target]
	if !ok {
		return nil, fmt.Errorf("endpoint %q is not declared", res.Target)
	}
	return d.call(ctx, ep, nil, nil, nil)
}

func (d *restDriver) Close() error {
	d.http.client.CloseIdleConnections()
	return nil
}

func (d *restDriver) call(ctx context.Context, ep restEndpoint, params, query map[string]any, body any) (any, error) {
	var path strings.Builder
	if err := ep.path.Execute(&path, params); err != nil {
		return nil, fmt.Errorf("rendering path of %s: %w", ep.Name, err)
	}
	if strings.Contains(path.String(), "<no value>") {
		return nil, fmt.Errorf("endpoint %s: missing path parameter for %s", ep.Name, ep.Path)
	}
	return d.http.do(ctx, ep.Method, d.http.resolve(path.String(), query), body)
}
