package driver

import (
	"context"
	"fmt"
	"sync"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

func init() {
	Register("rabbitmq", openBroker)
}

// brokerDriver dials lazily and redials after the connection drops.
type brokerDriver struct {
	ds  config.DataSource
	url string

	mu   sync.Mutex
	conn *amqp.Connection
}

func openBroker(ds config.DataSource) (Driver, error) {
	url, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	return &brokerDriver{ds: ds, url: url}, nil
}

func (d *brokerDriver) channel() (*amqp.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil || d.conn.IsClosed() {
		conn, err := amqp.Dial(d.url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		d.conn = conn
	}
	return d.conn.Channel()
}

func (d *brokerDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "publish_message":
		var in struct {
			Queue       string `json:"queue"`
			Body        string `json:"body"`
			ContentType string `json:"content_type"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("queue", in.Queue); err != nil {
			return nil, err
		}
		if in.ContentType == "" {
			in.ContentType = "text/plain"
		}
		ch, err := d.channel()
		if err != nil {
			return nil, err
		}
		defer ch.Close()
		err = ch.PublishWithContext(ctx, "", in.Queue, false, false, amqp.Publishing{
			ContentType: in.ContentType,
			Body:        []byte(in.Body),
		})
		if err != nil {
			return nil, fmt.Errorf("publish failed: %w", err)
		}
		return map[string]any{"queue": in.Queue, "published": true, "bytes": len(in.Body)}, nil

	case "queue_stats":
		var in struct {
			Queue string `json:"queue"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("queue", in.Queue); err != nil {
			return nil, err
		}
		return d.stats(in.Queue)
	}
	return nil, unknownTool(tool)
}

func (d *brokerDriver) ReadResource(_ context.Context, res backend.ResourcePlan) (any, error) {
	return d.stats(res.Target)
}

func (d *brokerDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil || d.conn.IsClosed() {
		return nil
	}
	return d.conn.Close()
}

func (d *brokerDriver) stats(queue string) (any, error) {
	ch, err := d.channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", queue, err)
	}
	return map[string]any{"queue": q.Name, "messages": q.Messages, "consumers": q.Consumers}, nil
}
