package backend

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"text/template"

	"datacenter/internal/config"

	"github.com/Masterminds/sprig/v3"
)

// RESTEndpoint is one declared endpoint of a REST API source. Path is a
// text/template rendered with the call's params (sprig functions available).
type RESTEndpoint struct {
	Name        string `mapstructure:"name"`
	Path        string `mapstructure:"path"`
	Method      string `mapstructure:"method"`
	Description string `mapstructure:"description"`
}

// HTTPView is the part of a REST or GraphQL descriptor the worker needs.
type HTTPView struct {
	Endpoints []RESTEndpoint    `mapstructure:"endpoints"`
	Headers   map[string]string `mapstructure:"headers"`
	Schemas   []Entry           `mapstructure:"schemas"`
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func init() {
	Register("rest_api", BuilderFunc{K: KindREST, F: restPlan})
}

// EndpointToolName is the tool advertised for a declared endpoint.
func EndpointToolName(endpoint string) string {
	return "call_" + endpoint
}

// ParsePathTemplate compiles an endpoint path.
func ParsePathTemplate(name, path string) (*template.Template, error) {
	return template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(path)
}

// DecodeHTTPView decodes and normalizes the endpoints and headers of ds.
func DecodeHTTPView(ds config.DataSource) (HTTPView, error) {
	var v HTTPView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return HTTPView{}, err
	}
	seen := make(map[string]bool, len(v.Endpoints))
	for i := range v.Endpoints {
		ep := &v.Endpoints[i]
		if !toolNamePattern.MatchString(ep.Name) {
			return HTTPView{}, fmt.Errorf("endpoint %d: invalid name %q", i, ep.Name)
		}
		if seen[ep.Name] {
			return HTTPView{}, fmt.Errorf("duplicate endpoint %q", ep.Name)
		}
		seen[ep.Name] = true

		ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
		if ep.Method == "" {
			ep.Method = http.MethodGet
		}
		if ep.Path == "" {
			ep.Path = "/"
		}
		if _, err := ParsePathTemplate(ep.Name, ep.Path); err != nil {
			return HTTPView{}, fmt.Errorf("endpoint %q: invalid path template: %w", ep.Name, err)
		}
	}
	return v, nil
}

func restPlan(ds config.DataSource) (Plan, error) {
	v, err := DecodeHTTPView(ds)
	if err != nil {
		return Plan{}, err
	}

	entries := make([]Entry, len(v.Endpoints))
	for i, ep := range v.Endpoints {
		desc := ep.Description
		if desc == "" {
			desc = fmt.Sprintf("%s %s", ep.Method, ep.Path)
		}
		entries[i] = Entry{Name: ep.Name, Description: desc}
	}
	resources, err := entryResources(ds.Type, ds.Name, "endpoint", "application/json", entries)
	if err != nil {
		return Plan{}, err
	}

	tools := []ToolPlan{{
		Name:        "http_request",
		Description: "Send an arbitrary request relative to the API base URL",
		InputSchema: objectSchema(map[string]any{
			"method": prop("string", "HTTP method, GET when empty"),
			"path":   prop("string", "Path relative to the base URL"),
			"query":  prop("object", "Query string parameters"),
			"body":   map[string]any{"description": "JSON request body"},
		}, "path"),
		OutputSchema: httpOutput,
	}}
	for _, ep := range v.Endpoints {
		desc := ep.Description
		if desc == "" {
			desc = fmt.Sprintf("Call %s %s", ep.Method, ep.Path)
		}
		tools = append(tools, ToolPlan{
			Name:        EndpointToolName(ep.Name),
			Description: desc,
			InputSchema: objectSchema(map[string]any{
				"params": prop("object", "Values substituted into the endpoint path"),
				"query":  prop("object", "Query string parameters"),
				"body":   map[string]any{"description": "JSON request body"},
			}),
			OutputSchema: httpOutput,
		})
	}

	return Plan{Resources: resources, Tools: tools}, nil
}
