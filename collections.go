package openiap

import (
	"time"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

func listCollectionsCall(includeHist bool) call[string] {
	return call[string]{
		op:    "list_collections",
		fn:    "list_collections",
		async: "list_collections_async",
		free:  "free_list_collections_response",
		idArg: true,
		encode: func(*native.Arena, int32) []uintptr {
			return []uintptr{cbool(includeHist)}
		},
		decode: decodeResult("list_collections"),
	}
}

// ListCollections returns the collections as a JSON array. History
// collections are included when includeHist is set.
func (c *Client) ListCollections(includeHist bool) (string, error) {
	return listCollectionsCall(includeHist).run(c)
}

// ListCollectionsAsync is the asynchronous form of ListCollections.
func (c *Client) ListCollectionsAsync(includeHist bool) *Future[string] {
	return listCollectionsCall(includeHist).start(c)
}

// Collation controls string comparison in a collection.
type Collation struct {
	Locale          string
	CaseLevel       bool
	CaseFirst       string
	Strength        int
	NumericOrdering bool
	Alternate       string
	MaxVariable     string
	Backwards       bool
}

// Timeseries turns a new collection into a time series collection.
type Timeseries struct {
	TimeField string
	MetaField string
	// Granularity is "seconds", "minutes" or "hours".
	Granularity string
}

// CreateCollectionRequest creates a collection.
type CreateCollectionRequest struct {
	Collection string
	Collation  *Collation
	Timeseries *Timeseries
	// ExpireAfter removes documents once they are this old. Zero keeps them.
	ExpireAfter                  time.Duration
	ChangeStreamPreAndPostImages bool
	Capped                       bool
	Max                          int
	Size                         int
}

func (r CreateCollectionRequest) validate() error {
	if err := requireCollection("create_collection", r.Collection); err != nil {
		return err
	}
	if r.Timeseries != nil && r.Timeseries.TimeField == "" {
		return invalid("create_collection", "timeseries.timefield", "is required")
	}
	if r.Capped && r.Size <= 0 {
		return invalid("create_collection", "size", "is required for a capped collection")
	}
	return nil
}

func (r CreateCollectionRequest) toNative(a *native.Arena, id int32) *native.CreateCollectionRequest {
	out := &native.CreateCollectionRequest{
		CollectionName:               a.CString(r.Collection),
		ExpireAfterSeconds:           int32(r.ExpireAfter / time.Second),
		ChangeStreamPreAndPostImages: r.ChangeStreamPreAndPostImages,
		Capped:                       r.Capped,
		Max:                          int32(r.Max),
		Size:                         int32(r.Size),
		RequestID:                    id,
	}
	if col := r.Collation; col != nil {
		out.Collation = native.Pin(a, &native.Collation{
			Locale:          a.CString(col.Locale),
			CaseLevel:       col.CaseLevel,
			CaseFirst:       a.CString(col.CaseFirst),
			Strength:        int32(col.Strength),
			NumericOrdering: col.NumericOrdering,
			Alternate:       a.CString(col.Alternate),
			MaxVariable:     a.CString(col.MaxVariable),
			Backwards:       col.Backwards,
		})
	}
	if ts := r.Timeseries; ts != nil {
		out.Timeseries = native.Pin(a, &native.Timeseries{
			TimeField:   a.CString(ts.TimeField),
			MetaField:   a.CString(ts.MetaField),
			Granularity: a.CString(ts.Granularity),
		})
	}
	return native.Pin(a, out)
}

func createCollectionCall(req CreateCollectionRequest) call[struct{}] {
	return call[struct{}]{
		op:    "create_collection",
		fn:    "create_collection",
		async: "create_collection_async",
		free:  "free_create_collection_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(req.toNative(a, id))}
		},
		decode: decodeStatus("create_collection"),
	}
}

// CreateCollection creates a collection.
func (c *Client) CreateCollection(req CreateCollectionRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	return createCollectionCall(req).exec(c)()
}

// CreateCollectionAsync is the asynchronous form of CreateCollection.
func (c *Client) CreateCollectionAsync(req CreateCollectionRequest) *Future[struct{}] {
	if err := req.validate(); err != nil {
		return bridge.Failed[struct{}](err)
	}
	return createCollectionCall(req).start(c)
}

func dropCollectionCall(name string) call[struct{}] {
	return call[struct{}]{
		op:    "drop_collection",
		fn:    "drop_collection",
		async: "drop_collection_async",
		free:  "free_drop_collection_response",
		idArg: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(name))}
		},
		decode: decodeStatus("drop_collection"),
	}
}

// DropCollection removes a collection and its documents.
func (c *Client) DropCollection(name string) error {
	if err := requireCollection("drop_collection", name); err != nil {
		return err
	}
	return dropCollectionCall(name).exec(c)()
}

// DropCollectionAsync is the asynchronous form of DropCollection.
func (c *Client) DropCollectionAsync(name string) *Future[struct{}] {
	if err := requireCollection("drop_collection", name); err != nil {
		return bridge.Failed[struct{}](err)
	}
	return dropCollectionCall(name).start(c)
}

func getIndexesCall(collection string) call[string] {
	return call[string]{
		op:    "get_indexes",
		fn:    "get_indexes",
		async: "get_indexes_async",
		free:  "free_get_indexes_response",
		idArg: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(collection))}
		},
		decode: decodeResult("get_indexes"),
	}
}

// GetIndexes returns the indexes of a collection as a JSON array.
func (c *Client) GetIndexes(collection string) (string, error) {
	if err := requireCollection("get_indexes", collection); err != nil {
		return "", err
	}
	return getIndexesCall(collection).run(c)
}

// GetIndexesAsync is the asynchronous form of GetIndexes.
func (c *Client) GetIndexesAsync(collection string) *Future[string] {
	if err := requireCollection("get_indexes", collection); err != nil {
		return bridge.Failed[string](err)
	}
	return getIndexesCall(collection).start(c)
}

// CreateIndexRequest creates an index.
type CreateIndexRequest struct {
	Collection string
	// Index is the key specification as a JSON object, e.g. {"name":1}.
	Index string
	// Options is a JSON object of index options.
	Options string
	Name    string
}

func (r CreateIndexRequest) validate() error {
	if err := requireCollection("create_index", r.Collection); err != nil {
		return err
	}
	if r.Index == "" {
		return invalid("create_index", "index", "is required")
	}
	if err := checkJSON("create_index", "index", r.Index); err != nil {
		return err
	}
	return checkJSON("create_index", "options", r.Options)
}

func createIndexCall(req CreateIndexRequest) call[struct{}] {
	return call[struct{}]{
		op:    "create_index",
		fn:    "create_index",
		async: "create_index_async",
		free:  "free_create_index_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.CreateIndexRequest{
				CollectionName: a.CString(req.Collection),
				Index:          a.CString(req.Index),
				Options:        a.CString(req.Options),
				Name:           a.CString(req.Name),
				RequestID:      id,
			}))}
		},
		decode: decodeStatus("create_index"),
	}
}

// CreateIndex creates an index.
func (c *Client) CreateIndex(req CreateIndexRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	return createIndexCall(req).exec(c)()
}

// CreateIndexAsync is the asynchronous form of CreateIndex.
func (c *Client) CreateIndexAsync(req CreateIndexRequest) *Future[struct{}] {
	if err := req.validate(); err != nil {
		return bridge.Failed[struct{}](err)
	}
	return createIndexCall(req).start(c)
}

func dropIndexCall(collection, name string) call[struct{}] {
	return call[struct{}]{
		op:    "drop_index",
		fn:    "drop_index",
		async: "drop_index_async",
		free:  "free_drop_index_response",
		idArg: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(collection)), native.Addr(a.CString(name))}
		},
		decode: decodeStatus("drop_index"),
	}
}

func validateDropIndex(collection, name string) error {
	if err := requireCollection("drop_index", collection); err != nil {
		return err
	}
	if name == "" {
		return invalid("drop_index", "name", "is required")
	}
	return nil
}

// DropIndex removes the index name from collection.
func (c *Client) DropIndex(collection, name string) error {
	if err := validateDropIndex(collection, name); err != nil {
		return err
	}
	return dropIndexCall(collection, name).exec(c)()
}

// DropIndexAsync is the asynchronous form of DropIndex.
func (c *Client) DropIndexAsync(collection, name string) *Future[struct{}] {
	if err := validateDropIndex(collection, name); err != nil {
		return bridge.Failed[struct{}](err)
	}
	return dropIndexCall(collection, name).start(c)
}
