package driver

import (
	"context"
	"fmt"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register("mongodb", openMongo)
}

type mongoDriver struct {
	ds     config.DataSource
	client *mongo.Client
	db     *mongo.Database
}

func openMongo(ds config.DataSource) (Driver, error) {
	uri, err := backend.ConnectionString(ds, false)
	if err != nil {
		return nil, err
	}
	conn, err := backend.DecodeConnection(ds)
	if err != nil {
		return nil, err
	}

	opts := options.Client().ApplyURI(uri).SetConnectTimeout(ds.Timeout(10 * time.Second))
	if n := ds.SettingInt("pool_size", 0); n > 0 {
		opts.SetMaxPoolSize(uint64(n))
	}

	// Connect only starts background monitoring; no server is contacted yet.
	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	return &mongoDriver{ds: ds, client: client, db: client.Database(conn.Database)}, nil
}

type findArgs struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`
	Limit      int            `json:"limit"`
}

func (d *mongoDriver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	switch tool {
	case "find_documents":
		var in findArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("collection", in.Collection); err != nil {
			return nil, err
		}
		return d.find(ctx, in.Collection, in.Filter, rowLimit(in.Limit, d.ds))

	case "count_documents":
		var in findArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("collection", in.Collection); err != nil {
			return nil, err
		}
		n, err := d.db.Collection(in.Collection).CountDocuments(ctx, filterDoc(in.Filter))
		if err != nil {
			return nil, fmt.Errorf("count failed: %w", err)
		}
		return map[string]any{"count": n}, nil

	case "list_collections":
		names, err := d.db.ListCollectionNames(ctx, bson.D{})
		if err != nil {
			return nil, fmt.Errorf("listing collections failed: %w", err)
		}
		return map[string]any{"names": names}, nil
	}
	return nil, unknownTool(tool)
}

func (d *mongoDriver) ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error) {
	return d.find(ctx, res.Target, nil, rowLimit(0, d.ds))
}

func (d *mongoDriver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *mongoDriver) find(ctx context.Context, collection string, filter map[string]any, limit int) (any, error) {
	cursor, err := d.db.Collection(collection).Find(ctx, filterDoc(filter), options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	docs := make([]bson.M, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading documents failed: %w", err)
	}
	return map[string]any{"documents": docs, "count": len(docs)}, nil
}

func filterDoc(filter map[string]any) any {
	if len(filter) == 0 {
		return bson.D{}
	}
	return bson.M(filter)
}
