package backend

import "datacenter/internal/config"

type cacheView struct {
	Keys []Entry `mapstructure:"keys"`
}

func init() {
	Register("redis", BuilderFunc{K: KindKeyValue, F: cachePlan})
}

func cachePlan(ds config.DataSource) (Plan, error) {
	var v cacheView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(ds.Type, ds.Name, "key", "application/json", v.Keys)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{
			{
				Name:        "get_key",
				Description: "Read the value stored at a key",
				InputSchema: objectSchema(map[string]any{
					"key": prop("string", "Key to read"),
				}, "key"),
				OutputSchema: objectSchema(map[string]any{
					"key":    prop("string", "Key"),
					"type":   prop("string", "Redis data type"),
					"value":  map[string]any{"description": "Stored value"},
					"exists": prop("boolean", "Whether the key exists"),
				}, "key", "exists"),
			},
			{
				Name:        "set_key",
				Description: "Store a string value at a key",
				InputSchema: objectSchema(map[string]any{
					"key":         prop("string", "Key to write"),
					"value":       prop("string", "Value"),
					"ttl_seconds": prop("integer", "Expiry in seconds; no expiry when 0"),
				}, "key", "value"),
				OutputSchema: genericOutput,
			},
			{
				Name:        "scan_keys",
				Description: "List keys matching a glob pattern",
				InputSchema: objectSchema(map[string]any{
					"pattern": prop("string", "Glob pattern, * when empty"),
					"count":   prop("integer", "Maximum number of keys"),
				}),
				OutputSchema: namesOutput,
			},
		},
	}, nil
}
