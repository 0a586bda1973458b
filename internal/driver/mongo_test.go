package driver

import (
	"context"
	"testing"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockMongo(mt *mtest.T, settings map[string]any) *mongoDriver {
	ds := config.DataSource{Name: "catalog", Type: "mongodb", Settings: settings}
	return &mongoDriver{ds: ds, client: mt.Client, db: mt.Client.Database("shop")}
}

func TestMongoDriver_ArgumentChecks(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		errMsg string
	}{
		{name: "find without collection", tool: "find_documents", args: map[string]any{}, errMsg: `argument "collection" is required`},
		{name: "count without collection", tool: "count_documents", args: map[string]any{"filter": map[string]any{}}, errMsg: `argument "collection" is required`},
		{name: "bad limit", tool: "find_documents", args: map[string]any{"collection": "products", "limit": "many"}, errMsg: "invalid arguments"},
		{name: "unknown tool", tool: "drop_database", errMsg: "drop_database"},
	}
	for _, tt := range tests {
		mt.Run(tt.name, func(mt *mtest.T) {
			_, err := mockMongo(mt, nil).CallTool(context.Background(), tt.tool, tt.args)
			assert.ErrorContains(mt, err, tt.errMsg)
		})
	}
}

func TestMongoDriver_FindDocuments(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns the batch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.products", mtest.FirstBatch,
			bson.D{{Key: "sku", Value: "a-1"}, {Key: "qty", Value: int32(4)}},
			bson.D{{Key: "sku", Value: "b-2"}, {Key: "qty", Value: int32(0)}},
		))

		out, err := mockMongo(mt, nil).CallTool(context.Background(), "find_documents", map[string]any{
			"collection": "products",
			"filter":     map[string]any{"qty": map[string]any{"$gte": 0}},
		})
		require.NoError(mt, err)
		got := out.(map[string]any)
		assert.Equal(mt, 2, got["count"])
		docs := got["documents"].([]bson.M)
		assert.Equal(mt, "a-1", docs[0]["sku"])
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		_, err := mockMongo(mt, nil).ReadResource(context.Background(), backend.ResourcePlan{Target: "products"})
		assert.ErrorContains(mt, err, "find failed")
	})
}

func TestMongoDriver_CountAndList(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.products", mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}},
		))
		out, err := mockMongo(mt, nil).CallTool(context.Background(), "count_documents", map[string]any{"collection": "products"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), out.(map[string]any)["count"])
	})

	mt.Run("list collections", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "shop.$cmd.listCollections", mtest.FirstBatch,
			bson.D{{Key: "name", Value: "products"}, {Key: "type", Value: "collection"}},
			bson.D{{Key: "name", Value: "orders"}, {Key: "type", Value: "collection"}},
		))
		out, err := mockMongo(mt, nil).CallTool(context.Background(), "list_collections", nil)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"products", "orders"}, out.(map[string]any)["names"])
	})
}

func TestFilterDoc(t *testing.T) {
	assert.Equal(t, bson.D{}, filterDoc(nil))
	assert.Equal(t, bson.D{}, filterDoc(map[string]any{}))
	assert.Equal(t, bson.M{"status": "open"}, filterDoc(map[string]any{"status": "open"}))
}
