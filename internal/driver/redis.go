package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", openRedis)
}

type redisDriver struct {
	ds     config.DataSource
	client *redis.Client
}

func openRedis(ds config.DataSource) (Driver, error) {
	url, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	timeout := ds.Timeout(5 * time.Second)
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	if n := ds.SettingInt("pool_size", 0); n > 0 {
		opts.PoolSize = n
	}
	return &redisDriver{ds: ds, client: redis.NewClient(opts)}, nil
}

func (d *redisDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "get_key":
		var in struct {
			Key string `json:"key"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("key", in.Key); err != nil {
			return nil, err
		}
		return d.get(ctx, in.Key)

	case "set_key":
		var in struct {
			Key        string `json:"key"`
			Value      string `json:"value"`
			TTLSeconds int    `json:"ttl_seconds"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("key", in.Key); err != nil {
			return nil, err
		}
		ttl := time.Duration(in.TTLSeconds) * time.Second
		if err := d.client.Set(ctx, in.Key, in.Value, ttl).Err(); err != nil {
			return nil, fmt.Errorf("set failed: %w", err)
		}
		return map[string]any{"key": in.Key, "stored": true}, nil

	case "scan_keys":
		var in struct {
			Pattern string `json:"pattern"`
			Count   int    `json:"count"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Pattern == "" {
			in.Pattern = "*"
		}
		return d.scan(ctx, in.Pattern, rowLimit(in.Count, d.ds))
	}
	return nil, unknownTool(tool)
}

func (d *redisDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	return d.get(ctx, res.Target)
}

func (d *redisDriver) Close() error {
	return d.client.Close()
}

func (d *redisDriver) get(ctx context.Context, key string) (map[string]any, error) {
	typ, err := d.client.Type(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("type of %s failed: %w", key, err)
	}

	out := map[string]any{"key": key, "type": typ, "exists": typ != "none"}
	var value any
	switch typ {
	case "none":
		return out, nil
	case "string":
		value, err = d.client.Get(ctx, key).Result()
	case "hash":
		value, err = d.client.HGetAll(ctx, key).Result()
	case "list":
		value, err = d.client.LRange(ctx, key, 0, -1).Result()
	case "set":
		value, err = d.client.SMembers(ctx, key).Result()
	case "zset":
		value, err = d.client.ZRange(ctx, key, 0, -1).Result()
	default:
		return nil, fmt.Errorf("unsupported value type %s for key %s", typ, key)
	}
	if errors.Is(err, redis.Nil) {
		out["exists"] = false
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read of %s failed: %w", key, err)
	}
	out["value"] = value
	return out, nil
}

func (d *redisDriver) scan(ctx context.Context, pattern string, limit int) (any, error) {
	names := make([]string, 0)
	var cursor uint64
	for {
		keys, next, err := d.client.Scan(ctx, cursor, pattern, int64(limit)).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		names = append(names, keys...)
		if next == 0 || len(names) >= limit {
			break
		}
		cursor = next
	}
	if len(names) > limit {
		names = names[:limit]
	}
	return map[string]any{"names": names}, nil
}
