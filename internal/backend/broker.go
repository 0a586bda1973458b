package backend

import "datacenter/internal/config"

type brokerView struct {
	Queues []Entry `mapstructure:"queues"`
}

func init() {
	Register("rabbitmq", BuilderFunc{K: KindBroker, F: brokerPlan})
}

func brokerPlan(ds config.DataSource) (Plan, error) {
	var v brokerView
	if err := DecodeView(ds.Extras, &v); err != nil {
		return Plan{}, err
	}
	resources, err := entryResources(ds.Type, ds.Name, "queue", "application/json", v.Queues)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Resources: resources,
		Tools: []ToolPlan{
			{
				Name:        "publish_message",
				Description: "Publish a message to a queue through the default exchange",
				InputSchema: objectSchema(map[string]any{
					"queue":        prop("string", "Queue name"),
					"body":         prop("string", "Message body"),
					"content_type": prop("string", "Content type, text/plain when empty"),
				}, "queue", "body"),
				OutputSchema: genericOutput,
			},
			{
				Name:        "queue_stats",
				Description: "Report message and consumer counts of a queue",
				InputSchema: objectSchema(map[string]any{
					"queue": prop("string", "Queue name"),
				}, "queue"),
				OutputSchema: objectSchema(map[string]any{
					"queue":     prop("string", "Queue name"),
					"messages":  prop("integer", "Ready messages"),
					"consumers": prop("integer", "Active consumers"),
				}, "queue"),
			},
		},
	}, nil
}
