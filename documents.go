package openiap

import (
	"encoding/json"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// DefaultTop is the page size Query uses when QueryRequest.Top is zero.
const DefaultTop = 100

// checkJSON rejects a non-empty field that is not valid JSON.
func checkJSON(op, field, v string) error {
	if v != "" && !json.Valid([]byte(v)) {
		return invalid(op, field, "is not valid JSON")
	}
	return nil
}

func requireCollection(op, name string) error {
	if name == "" {
		return invalid(op, "collection", "is required")
	}
	return nil
}

// SigninRequest authenticates with a username and password or a JWT.
type SigninRequest struct {
	Username string
	Password string
	JWT      string
	Agent    string
	Version  string
	// LongToken asks for a token with the server's long expiry.
	LongToken bool
	// ValidateOnly checks the credentials without changing the signed in
	// user.
	ValidateOnly bool
	Ping         bool
}

func (r SigninRequest) validate() error {
	if r.JWT == "" && (r.Username == "" || r.Password == "") {
		return invalid("signin", "username", "username and password or jwt is required")
	}
	return nil
}

func signinCall(req SigninRequest) call[string] {
	return call[string]{
		op:    "signin",
		fn:    "signin",
		async: "signin_async",
		free:  "free_signin_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.SigninRequest{
				Username:     a.CString(req.Username),
				Password:     a.CString(req.Password),
				JWT:          a.CString(req.JWT),
				Agent:        a.CString(req.Agent),
				Version:      a.CString(req.Version),
				LongToken:    req.LongToken,
				ValidateOnly: req.ValidateOnly,
				Ping:         req.Ping,
				RequestID:    id,
			}))}
		},
		decode: decodeResult("signin"),
	}
}

// Signin authenticates the client and returns the issued JWT.
func (c *Client) Signin(req SigninRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return signinCall(req).run(c)
}

// SigninAsync is the asynchronous form of Signin.
func (c *Client) SigninAsync(req SigninRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return signinCall(req).start(c)
}

// QueryRequest finds documents in a collection.
type QueryRequest struct {
	Collection string
	// Query is a JSON filter. Empty matches every document.
	Query      string
	Projection string
	OrderBy    string
	QueryAs    string
	Explain    bool
	Skip       int
	// Top limits the result. Default: DefaultTop
	Top int
}

func (r *QueryRequest) validate() error {
	if err := requireCollection("query", r.Collection); err != nil {
		return err
	}
	if r.Skip < 0 {
		return invalid("query", "skip", "must not be negative")
	}
	if r.Top < 0 {
		return invalid("query", "top", "must not be negative")
	}
	if r.Top == 0 {
		r.Top = DefaultTop
	}
	if err := checkJSON("query", "query", r.Query); err != nil {
		return err
	}
	return checkJSON("query", "projection", r.Projection)
}

func queryCall(req QueryRequest) call[string] {
	return call[string]{
		op:    "query",
		fn:    "query",
		async: "query_async",
		free:  "free_query_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.QueryRequest{
				CollectionName: a.CString(req.Collection),
				Query:          a.CString(req.Query),
				Projection:     a.CString(req.Projection),
				OrderBy:        a.CString(req.OrderBy),
				QueryAs:        a.CString(req.QueryAs),
				Explain:        req.Explain,
				Skip:           int32(req.Skip),
				Top:            int32(req.Top),
				RequestID:      id,
			}))}
		},
		decode: decodeResult("query"),
	}
}

// Query returns the matching documents as a JSON array.
func (c *Client) Query(req QueryRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return queryCall(req).run(c)
}

// QueryAsync is the asynchronous form of Query.
func (c *Client) QueryAsync(req QueryRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return queryCall(req).start(c)
}

// AggregateRequest runs an aggregation pipeline.
type AggregateRequest struct {
	Collection string
	// Aggregates is the pipeline as a JSON array.
	Aggregates string
	QueryAs    string
	Hint       string
	Explain    bool
}

func (r AggregateRequest) validate() error {
	if err := requireCollection("aggregate", r.Collection); err != nil {
		return err
	}
	if r.Aggregates == "" {
		return invalid("aggregate", "aggregates", "is required")
	}
	return checkJSON("aggregate", "aggregates", r.Aggregates)
}

func aggregateCall(req AggregateRequest) call[string] {
	return call[string]{
		op:    "aggregate",
		fn:    "aggregate",
		async: "aggregate_async",
		free:  "free_aggregate_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.AggregateRequest{
				CollectionName: a.CString(req.Collection),
				Aggregates:     a.CString(req.Aggregates),
				QueryAs:        a.CString(req.QueryAs),
				Hint:           a.CString(req.Hint),
				Explain:        req.Explain,
				RequestID:      id,
			}))}
		},
		decode: decodeResult("aggregate"),
	}
}

// Aggregate returns the pipeline's output as a JSON array.
func (c *Client) Aggregate(req AggregateRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return aggregateCall(req).run(c)
}

// AggregateAsync is the asynchronous form of Aggregate.
func (c *Client) AggregateAsync(req AggregateRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return aggregateCall(req).start(c)
}

// CountRequest counts the documents matching a filter.
type CountRequest struct {
	Collection string
	Query      string
	QueryAs    string
	Explain    bool
}

func (r CountRequest) validate() error {
	if err := requireCollection("count", r.Collection); err != nil {
		return err
	}
	return checkJSON("count", "query", r.Query)
}

func countCall(req CountRequest) call[int] {
	return call[int]{
		op:    "count",
		fn:    "count",
		async: "count_async",
		free:  "free_count_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.CountRequest{
				CollectionName: a.CString(req.Collection),
				Query:          a.CString(req.Query),
				QueryAs:        a.CString(req.QueryAs),
				Explain:        req.Explain,
				RequestID:      id,
			}))}
		},
		decode: decodeCount("count"),
	}
}

// Count returns the number of matching documents.
func (c *Client) Count(req CountRequest) (int, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	return countCall(req).run(c)
}

// CountAsync is the asynchronous form of Count.
func (c *Client) CountAsync(req CountRequest) *Future[int] {
	if err := req.validate(); err != nil {
		return bridge.Failed[int](err)
	}
	return countCall(req).start(c)
}

// DistinctRequest lists the distinct values of a field.
type DistinctRequest struct {
	Collection string
	Field      string
	Query      string
	QueryAs    string
	Explain    bool
}

func (r DistinctRequest) validate() error {
	if err := requireCollection("distinct", r.Collection); err != nil {
		return err
	}
	if r.Field == "" {
		return invalid("distinct", "field", "is required")
	}
	return checkJSON("distinct", "query", r.Query)
}

func distinctCall(req DistinctRequest) call[[]string] {
	return call[[]string]{
		op:    "distinct",
		fn:    "distinct",
		async: "distinct_async",
		free:  "free_distinct_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.DistinctRequest{
				CollectionName: a.CString(req.Collection),
				Field:          a.CString(req.Field),
				Query:          a.CString(req.Query),
				QueryAs:        a.CString(req.QueryAs),
				Explain:        req.Explain,
				RequestID:      id,
			}))}
		},
		decode: decodeDistinct("distinct"),
	}
}

// Distinct returns the distinct values of req.Field.
func (c *Client) Distinct(req DistinctRequest) ([]string, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return distinctCall(req).run(c)
}

// DistinctAsync is the asynchronous form of Distinct.
func (c *Client) DistinctAsync(req DistinctRequest) *Future[[]string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[[]string](err)
	}
	return distinctCall(req).start(c)
}

// InsertOneRequest inserts a document.
type InsertOneRequest struct {
	Collection string
	// Item is the document as a JSON object.
	Item string
	// W and J are the write concern.
	W int
	J bool
}

func (r InsertOneRequest) validate(op string) error {
	if err := requireCollection(op, r.Collection); err != nil {
		return err
	}
	if r.Item == "" {
		return invalid(op, "item", "is required")
	}
	return checkJSON(op, "item", r.Item)
}

func insertOneCall(req InsertOneRequest) call[string] {
	return call[string]{
		op:    "insert_one",
		fn:    "insert_one",
		async: "insert_one_async",
		free:  "free_insert_one_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.InsertOneRequest{
				CollectionName: a.CString(req.Collection),
				Item:           a.CString(req.Item),
				W:              int32(req.W),
				J:              req.J,
				RequestID:      id,
			}))}
		},
		decode: decodeResult("insert_one"),
	}
}

// InsertOne inserts req.Item and returns the stored document.
func (c *Client) InsertOne(req InsertOneRequest) (string, error) {
	if err := req.validate("insert_one"); err != nil {
		return "", err
	}
	return insertOneCall(req).run(c)
}

// InsertOneAsync is the asynchronous form of InsertOne.
func (c *Client) InsertOneAsync(req InsertOneRequest) *Future[string] {
	if err := req.validate("insert_one"); err != nil {
		return bridge.Failed[string](err)
	}
	return insertOneCall(req).start(c)
}

// InsertManyRequest inserts several documents.
type InsertManyRequest struct {
	Collection string
	// Items is a JSON array of documents.
	Items string
	W     int
	J     bool
	// SkipResults makes the server return an empty array.
	SkipResults bool
}

func (r InsertManyRequest) validate() error {
	if err := requireCollection("insert_many", r.Collection); err != nil {
		return err
	}
	if r.Items == "" {
		return invalid("insert_many", "items", "is required")
	}
	return checkJSON("insert_many", "items", r.Items)
}

func insertManyCall(req InsertManyRequest) call[string] {
	return call[string]{
		op:    "insert_many",
		fn:    "insert_many",
		async: "insert_many_async",
		free:  "free_insert_many_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.InsertManyRequest{
				CollectionName: a.CString(req.Collection),
				Items:          a.CString(req.Items),
				W:              int32(req.W),
				J:              req.J,
				SkipResults:    req.SkipResults,
				RequestID:      id,
			}))}
		},
		decode: decodeResult("insert_many"),
	}
}

// InsertMany inserts req.Items and returns the stored documents.
func (c *Client) InsertMany(req InsertManyRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return insertManyCall(req).run(c)
}

// InsertManyAsync is the asynchronous form of InsertMany.
func (c *Client) InsertManyAsync(req InsertManyRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return insertManyCall(req).start(c)
}

// UpdateOneRequest replaces the document with the same _id as Item.
type UpdateOneRequest InsertOneRequest

func updateOneCall(req UpdateOneRequest) call[string] {
	return call[string]{
		op:    "update_one",
		fn:    "update_one",
		async: "update_one_async",
		free:  "free_update_one_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.InsertOneRequest{
				CollectionName: a.CString(req.Collection),
				Item:           a.CString(req.Item),
				W:              int32(req.W),
				J:              req.J,
				RequestID:      id,
			}))}
		},
		decode: decodeResult("update_one"),
	}
}

// UpdateOne replaces a document and returns the stored version.
func (c *Client) UpdateOne(req UpdateOneRequest) (string, error) {
	if err := InsertOneRequest(req).validate("update_one"); err != nil {
		return "", err
	}
	return updateOneCall(req).run(c)
}

// UpdateOneAsync is the asynchronous form of UpdateOne.
func (c *Client) UpdateOneAsync(req UpdateOneRequest) *Future[string] {
	if err := InsertOneRequest(req).validate("update_one"); err != nil {
		return bridge.Failed[string](err)
	}
	return updateOneCall(req).start(c)
}

// InsertOrUpdateOneRequest inserts Item, or replaces the document whose
// Uniqueness fields match it.
type InsertOrUpdateOneRequest struct {
	Collection string
	// Uniqueness is a comma separated list of fields. Default: "_id"
	Uniqueness string
	Item       string
	W          int
	J          bool
}

func (r InsertOrUpdateOneRequest) validate() error {
	return InsertOneRequest{Collection: r.Collection, Item: r.Item}.validate("insert_or_update_one")
}

func insertOrUpdateOneCall(req InsertOrUpdateOneRequest) call[string] {
	return call[string]{
		op:    "insert_or_update_one",
		fn:    "insert_or_update_one",
		async: "insert_or_update_one_async",
		free:  "free_insert_or_update_one_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.InsertOrUpdateOneRequest{
				CollectionName: a.CString(req.Collection),
				Uniqueness:     a.CString(req.Uniqueness),
				Item:           a.CString(req.Item),
				W:              int32(req.W),
				J:              req.J,
				RequestID:      id,
			}))}
		},
		decode: decodeResult("insert_or_update_one"),
	}
}

// InsertOrUpdateOne upserts req.Item and returns the stored document.
func (c *Client) InsertOrUpdateOne(req InsertOrUpdateOneRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return insertOrUpdateOneCall(req).run(c)
}

// InsertOrUpdateOneAsync is the asynchronous form of InsertOrUpdateOne.
func (c *Client) InsertOrUpdateOneAsync(req InsertOrUpdateOneRequest) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return insertOrUpdateOneCall(req).start(c)
}

// DeleteOneRequest deletes a document by id.
type DeleteOneRequest struct {
	Collection string
	ID         string
	// Recursive also deletes documents that reference this one.
	Recursive bool
}

func (r DeleteOneRequest) validate() error {
	if err := requireCollection("delete_one", r.Collection); err != nil {
		return err
	}
	if r.ID == "" {
		return invalid("delete_one", "id", "is required")
	}
	return nil
}

func deleteOneCall(req DeleteOneRequest) call[int] {
	return call[int]{
		op:    "delete_one",
		fn:    "delete_one",
		async: "delete_one_async",
		free:  "free_delete_one_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.DeleteOneRequest{
				CollectionName: a.CString(req.Collection),
				ID:             a.CString(req.ID),
				Recursive:      req.Recursive,
				RequestID:      id,
			}))}
		},
		decode: decodeCount("delete_one"),
	}
}

// DeleteOne deletes a document and returns how many were removed.
func (c *Client) DeleteOne(req DeleteOneRequest) (int, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	return deleteOneCall(req).run(c)
}

// DeleteOneAsync is the asynchronous form of DeleteOne.
func (c *Client) DeleteOneAsync(req DeleteOneRequest) *Future[int] {
	if err := req.validate(); err != nil {
		return bridge.Failed[int](err)
	}
	return deleteOneCall(req).start(c)
}

// DeleteManyRequest deletes the documents matching Query, or those listed in
// IDs.
type DeleteManyRequest struct {
	Collection string
	Query      string
	IDs        []string
	Recursive  bool
}

func (r DeleteManyRequest) validate() error {
	if err := requireCollection("delete_many", r.Collection); err != nil {
		return err
	}
	if r.Query == "" && len(r.IDs) == 0 {
		return invalid("delete_many", "query", "query or ids is required")
	}
	return checkJSON("delete_many", "query", r.Query)
}

func deleteManyCall(req DeleteManyRequest) call[int] {
	return call[int]{
		op:    "delete_many",
		fn:    "delete_many",
		async: "delete_many_async",
		free:  "free_delete_many_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.DeleteManyRequest{
				CollectionName: a.CString(req.Collection),
				Query:          a.CString(req.Query),
				Recursive:      req.Recursive,
				IDs:            a.StringArray(req.IDs),
				RequestID:      id,
			}))}
		},
		decode: decodeCount("delete_many"),
	}
}

// DeleteMany deletes documents and returns how many were removed.
func (c *Client) DeleteMany(req DeleteManyRequest) (int, error) {
	if err := req.validate(); err != nil {
		return 0, err
	}
	return deleteManyCall(req).run(c)
}

// DeleteManyAsync is the asynchronous form of DeleteMany.
func (c *Client) DeleteManyAsync(req DeleteManyRequest) *Future[int] {
	if err := req.validate(); err != nil {
		return bridge.Failed[int](err)
	}
	return deleteManyCall(req).start(c)
}
