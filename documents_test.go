package openiap_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openiap/openiap-go"
)

func seedPeople(t *testing.T, client *openiap.Client) {
	t.Helper()
	_, err := client.InsertMany(openiap.InsertManyRequest{
		Collection: "people",
		Items:      `[{"name":"ann","age":31},{"name":"bob","age":25},{"name":"bob","age":40}]`,
	})
	require.NoError(t, err)
}

func TestQuery(t *testing.T) {
	client, _ := setupClient(t)
	seedPeople(t, client)

	t.Run("Filter", func(t *testing.T) {
		out, err := client.Query(openiap.QueryRequest{Collection: "people", Query: `{"name":"bob"}`})
		require.NoError(t, err)
		assert.Len(t, decodeDocs(t, out), 2)
	})

	t.Run("OrderAndPage", func(t *testing.T) {
		out, err := client.Query(openiap.QueryRequest{
			Collection: "people",
			OrderBy:    `{"age":-1}`,
			Skip:       1,
			Top:        1,
		})
		require.NoError(t, err)
		docs := decodeDocs(t, out)
		require.Len(t, docs, 1)
		assert.Equal(t, "ann", docs[0]["name"])
	})

	t.Run("Projection", func(t *testing.T) {
		out, err := client.Query(openiap.QueryRequest{Collection: "people", Projection: `{"name":1}`})
		require.NoError(t, err)
		for _, d := range decodeDocs(t, out) {
			assert.NotContains(t, d, "age")
			assert.Contains(t, d, "_id")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		tests := []struct {
			name  string
			req   openiap.QueryRequest
			field string
		}{
			{"NoCollection", openiap.QueryRequest{}, "collection"},
			{"BadQuery", openiap.QueryRequest{Collection: "people", Query: "{name"}, "query"},
			{"NegativeSkip", openiap.QueryRequest{Collection: "people", Skip: -1}, "skip"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := client.Query(tt.req)
				var verr *openiap.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
			})
		}
	})
}

func TestAggregate(t *testing.T) {
	client, _ := setupClient(t)
	seedPeople(t, client)

	out, err := client.Aggregate(openiap.AggregateRequest{
		Collection: "people",
		Aggregates: `[{"$match":{"name":"ann"}}]`,
	})
	require.NoError(t, err)
	assert.Len(t, decodeDocs(t, out), 1)

	out, err = client.AggregateAsync(openiap.AggregateRequest{
		Collection: "people",
		Aggregates: `[{"$match":{"name":"bob"}}]`,
	}).Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, decodeDocs(t, out), 2)

	_, err = client.Aggregate(openiap.AggregateRequest{Collection: "people", Aggregates: "[{"})
	var verr *openiap.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCountAndDistinct(t *testing.T) {
	client, _ := setupClient(t)
	seedPeople(t, client)

	n, err := client.Count(openiap.CountRequest{Collection: "people"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = client.CountAsync(openiap.CountRequest{Collection: "people", Query: `{"name":"bob"}`}).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := client.Distinct(openiap.DistinctRequest{Collection: "people", Field: "name"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ann", "bob"}, names)

	names, err = client.DistinctAsync(openiap.DistinctRequest{Collection: "nothing", Field: "name"}).Await(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)

	_, err = client.Distinct(openiap.DistinctRequest{Collection: "people"})
	var verr *openiap.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "field", verr.Field)
}

func TestInsertUpdateDelete(t *testing.T) {
	client, core := setupClient(t)

	out, err := client.InsertOne(openiap.InsertOneRequest{Collection: "entities", Item: `{"name":"first"}`})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	id, _ := doc["_id"].(string)
	require.NotEmpty(t, id)

	out, err = client.UpdateOne(openiap.UpdateOneRequest{
		Collection: "entities",
		Item:       `{"_id":"` + id + `","name":"renamed"}`,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "renamed")

	_, err = client.UpdateOneAsync(openiap.UpdateOneRequest{
		Collection: "entities",
		Item:       `{"_id":"missing","name":"x"}`,
	}).Await(context.Background())
	var rerr *openiap.RequestFailedError
	require.ErrorAs(t, err, &rerr)

	_, err = client.InsertOrUpdateOne(openiap.InsertOrUpdateOneRequest{
		Collection: "entities",
		Uniqueness: "name",
		Item:       `{"name":"renamed","tag":"upserted"}`,
	})
	require.NoError(t, err)
	n, err := client.Count(openiap.CountRequest{Collection: "entities"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = client.InsertOrUpdateOneAsync(openiap.InsertOrUpdateOneRequest{
		Collection: "entities",
		Uniqueness: "name",
		Item:       `{"name":"second"}`,
	}).Await(context.Background())
	require.NoError(t, err)

	deleted, err := client.DeleteOne(openiap.DeleteOneRequest{Collection: "entities", ID: id})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = client.DeleteOneAsync(openiap.DeleteOneRequest{Collection: "entities", ID: id}).Await(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = client.InsertOne(openiap.InsertOneRequest{Collection: "entities", Item: "{bad"})
	var verr *openiap.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "item", verr.Field)
	assert.Equal(t, 1, core.Calls("insert_one"))
}

func TestInsertManyAndDeleteMany(t *testing.T) {
	client, _ := setupClient(t)

	out, err := client.InsertManyAsync(openiap.InsertManyRequest{
		Collection: "items",
		Items:      `[{"n":1},{"n":2},{"n":3},{"n":4}]`,
	}).Await(context.Background())
	require.NoError(t, err)
	docs := decodeDocs(t, out)
	require.Len(t, docs, 4)

	out, err = client.InsertMany(openiap.InsertManyRequest{
		Collection:  "items",
		Items:       `[{"n":5}]`,
		SkipResults: true,
	})
	require.NoError(t, err)
	assert.Empty(t, decodeDocs(t, out))

	ids := []string{docs[0]["_id"].(string), docs[1]["_id"].(string)}
	n, err := client.DeleteMany(openiap.DeleteManyRequest{Collection: "items", IDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = client.DeleteManyAsync(openiap.DeleteManyRequest{Collection: "items", Query: `{"n":3}`}).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = client.DeleteMany(openiap.DeleteManyRequest{Collection: "items"})
	var verr *openiap.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = client.InsertMany(openiap.InsertManyRequest{Collection: "items", Items: `[{"n":1}`})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)
}

func TestCollections(t *testing.T) {
	client, _ := setupClient(t)

	require.NoError(t, client.CreateCollection(openiap.CreateCollectionRequest{Collection: "logs"}))
	err := client.CreateCollection(openiap.CreateCollectionRequest{Collection: "logs"})
	var rerr *openiap.RequestFailedError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "already exists")

	_, err = client.CreateCollectionAsync(openiap.CreateCollectionRequest{
		Collection: "metrics",
		Timeseries: &openiap.Timeseries{TimeField: "ts", Granularity: "minutes"},
		Collation:  &openiap.Collation{Locale: "en", Strength: 2},
	}).Await(context.Background())
	require.NoError(t, err)

	out, err := client.ListCollections(false)
	require.NoError(t, err)
	cols := decodeDocs(t, out)
	require.Len(t, cols, 2)
	assert.Equal(t, "logs", cols[0]["name"])
	assert.Equal(t, "timeseries", cols[1]["type"])

	require.NoError(t, client.CreateIndex(openiap.CreateIndexRequest{Collection: "logs", Index: `{"ts":1}`, Name: "ts_1"}))
	_, err = client.CreateIndexAsync(openiap.CreateIndexRequest{Collection: "logs", Index: `{"level":1}`}).Await(context.Background())
	require.NoError(t, err)

	out, err = client.GetIndexes("logs")
	require.NoError(t, err)
	assert.Len(t, decodeDocs(t, out), 2)
	assert.Contains(t, out, "ts_1")

	require.NoError(t, client.DropIndex("logs", "ts_1"))
	_, err = client.DropIndexAsync("logs", "ts_1").Await(context.Background())
	require.ErrorAs(t, err, &rerr)

	out, err = client.GetIndexesAsync("logs").Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, decodeDocs(t, out), 1)

	require.NoError(t, client.DropCollection("logs"))
	_, err = client.DropCollectionAsync("metrics").Await(context.Background())
	require.NoError(t, err)

	out, err = client.ListCollectionsAsync(true).Await(context.Background())
	require.NoError(t, err)
	assert.Empty(t, decodeDocs(t, out))

	var verr *openiap.ValidationError
	require.ErrorAs(t, client.CreateCollection(openiap.CreateCollectionRequest{Collection: "c", Capped: true}), &verr)
	assert.Equal(t, "size", verr.Field)
	require.ErrorAs(t, client.CreateIndex(openiap.CreateIndexRequest{Collection: "logs"}), &verr)
	assert.Equal(t, "index", verr.Field)
	require.ErrorAs(t, client.DropIndex("logs", ""), &verr)
}

func TestFiles(t *testing.T) {
	client, _ := setupClient(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly numbers"), 0o600))

	id, err := client.Upload(openiap.UploadRequest{FilePath: src, MimeType: "text/plain", Metadata: `{"kind":"report"}`})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	n, err := client.Count(openiap.CountRequest{Collection: "fs.files"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := t.TempDir()
	name, err := client.Download(openiap.DownloadRequest{ID: id, Folder: out})
	require.NoError(t, err)
	assert.Equal(t, "report.txt", name)
	data, err := os.ReadFile(filepath.Join(out, name))
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))

	name, err = client.DownloadAsync(openiap.DownloadRequest{ID: id, Folder: out, Filename: "copy.txt"}).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "copy.txt", name)

	id, err = client.UploadAsync(openiap.UploadRequest{FilePath: src, Filename: "renamed.txt"}).Await(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = client.Upload(openiap.UploadRequest{FilePath: filepath.Join(dir, "missing.txt")})
	var rerr *openiap.RequestFailedError
	require.ErrorAs(t, err, &rerr)

	_, err = client.Download(openiap.DownloadRequest{})
	var verr *openiap.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}
