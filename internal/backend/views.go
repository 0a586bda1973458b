package backend

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Entry is one declared structural element: a table, collection, index,
// key, queue or schema. It may be written as a bare string or as a mapping
// with name and description.
type Entry struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

var entryType = reflect.TypeOf(Entry{})

func stringToEntryHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to == entryType && from.Kind() == reflect.String {
		return Entry{Name: data.(string)}, nil
	}
	return data, nil
}

// DecodeView decodes the subset of an opaque map that a backend understands
// into out. Unknown keys are ignored.
func DecodeView(src map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToEntryHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(src); err != nil {
		return fmt.Errorf("invalid backend options: %w", err)
	}
	return nil
}

func scheme(typeName string) string {
	return strings.ReplaceAll(typeName, "_", "-")
}

// ResourceURI builds the address of one structural element.
func ResourceURI(typeName, source, category, target string) string {
	return fmt.Sprintf("%s://%s/%s/%s", scheme(typeName), source, category, target)
}

func entryResources(typeName, source, category, mime string, entries []Entry) ([]ResourcePlan, error) {
	seen := make(map[string]bool, len(entries))
	out := make([]ResourcePlan, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%s entry %d has no name", category, i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate %s %q", category, e.Name)
		}
		seen[e.Name] = true

		desc := e.Description
		if desc == "" {
			desc = fmt.Sprintf("%s %s of %s", strings.ToUpper(category[:1])+category[1:], e.Name, source)
		}
		out = append(out, ResourcePlan{
			Name:        fmt.Sprintf("%s_%s", category, e.Name),
			URI:         ResourceURI(typeName, source, category, e.Name),
			MIMEType:    mime,
			Description: desc,
			Target:      e.Name,
			Category:    category,
		})
	}
	return out, nil
}

// objectSchema renders a JSON Schema object with the given properties.
func objectSchema(props map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{"type": "object"}
	if props == nil {
		props = map[string]any{}
	}
	schema["properties"] = props
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("invalid schema literal: %v", err))
	}
	return raw
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func arrayOf(items map[string]any, description string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": description}
}

var (
	rowsOutput = objectSchema(map[string]any{
		"columns": arrayOf(map[string]any{"type": "string"}, "Column names"),
		"rows":    arrayOf(map[string]any{"type": "object"}, "Result rows"),
		"count":   prop("integer", "Number of rows returned"),
	}, "rows", "count")

	documentsOutput = objectSchema(map[string]any{
		"documents": arrayOf(map[string]any{"type": "object"}, "Matching documents"),
		"count":     prop("integer", "Number of documents returned"),
	}, "documents", "count")

	namesOutput = objectSchema(map[string]any{
		"names": arrayOf(map[string]any{"type": "string"}, "Names"),
	}, "names")

	httpOutput = objectSchema(map[string]any{
		"status":  prop("integer", "HTTP status code"),
		"headers": prop("object", "Selected response headers"),
		"body":    map[string]any{"description": "Decoded JSON body, or the raw body as a string"},
	}, "status")

	genericOutput = objectSchema(nil)
)

func sourceInfoTool() ToolPlan {
	return ToolPlan{
		Name:        "source_info",
		Description: "Describe this data source: name, type, kind and declared resources",
		InputSchema: objectSchema(nil),
		OutputSchema: objectSchema(map[string]any{
			"name":      prop("string", "Data source name"),
			"type":      prop("string", "Data source type"),
			"kind":      prop("string", "Backend kind"),
			"resources": arrayOf(map[string]any{"type": "string"}, "Resource URIs"),
		}, "name", "type"),
	}
}
