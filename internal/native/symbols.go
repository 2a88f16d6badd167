package native

import "unsafe"

// AsyncFunc describes how an *_async export delivers its response.
type AsyncFunc struct {
	// Free is the export releasing the response block.
	Free string
	// IDOffset is the byte offset of request_id inside the response.
	IDOffset uintptr
	// TrailingTimeout is set when the callback is followed by an int32
	// timeout argument instead of being last.
	TrailingTimeout bool
}

var (
	statusIDOffset   = unsafe.Offsetof(StatusResponse{}.RequestID)
	resultIDOffset   = unsafe.Offsetof(ResultResponse{}.RequestID)
	countIDOffset    = unsafe.Offsetof(CountResponse{}.RequestID)
	distinctIDOffset = unsafe.Offsetof(DistinctResponse{}.RequestID)
	workitemIDOffset = unsafe.Offsetof(WorkitemResponse{}.RequestID)
)

// AsyncFuncs lists every asynchronous export the client uses.
var AsyncFuncs = map[string]AsyncFunc{
	"connect_async":              {Free: "free_connect_response", IDOffset: statusIDOffset},
	"signin_async":               {Free: "free_signin_response", IDOffset: resultIDOffset},
	"query_async":                {Free: "free_query_response", IDOffset: resultIDOffset},
	"aggregate_async":            {Free: "free_aggregate_response", IDOffset: resultIDOffset},
	"count_async":                {Free: "free_count_response", IDOffset: countIDOffset},
	"distinct_async":             {Free: "free_distinct_response", IDOffset: distinctIDOffset},
	"insert_one_async":           {Free: "free_insert_one_response", IDOffset: resultIDOffset},
	"insert_many_async":          {Free: "free_insert_many_response", IDOffset: resultIDOffset},
	"update_one_async":           {Free: "free_update_one_response", IDOffset: resultIDOffset},
	"insert_or_update_one_async": {Free: "free_insert_or_update_one_response", IDOffset: resultIDOffset},
	"delete_one_async":           {Free: "free_delete_one_response", IDOffset: countIDOffset},
	"delete_many_async":          {Free: "free_delete_many_response", IDOffset: countIDOffset},
	"download_async":             {Free: "free_download_response", IDOffset: resultIDOffset},
	"upload_async":               {Free: "free_upload_response", IDOffset: resultIDOffset},
	"list_collections_async":     {Free: "free_list_collections_response", IDOffset: resultIDOffset},
	"create_collection_async":    {Free: "free_create_collection_response", IDOffset: statusIDOffset},
	"drop_collection_async":      {Free: "free_drop_collection_response", IDOffset: statusIDOffset},
	"get_indexes_async":          {Free: "free_get_indexes_response", IDOffset: resultIDOffset},
	"create_index_async":         {Free: "free_create_index_response", IDOffset: statusIDOffset},
	"drop_index_async":           {Free: "free_drop_index_response", IDOffset: statusIDOffset},
	"unwatch_async":              {Free: "free_unwatch_response", IDOffset: statusIDOffset},
	"push_workitem_async":        {Free: "free_push_workitem_response", IDOffset: workitemIDOffset},
	"pop_workitem_async":         {Free: "free_pop_workitem_response", IDOffset: workitemIDOffset},
	"update_workitem_async":      {Free: "free_update_workitem_response", IDOffset: workitemIDOffset},
	"delete_workitem_async":      {Free: "free_delete_workitem_response", IDOffset: statusIDOffset},
	"custom_command_async":       {Free: "free_custom_command_response", IDOffset: resultIDOffset, TrailingTimeout: true},
	"rpc_async":                  {Free: "free_rpc_response", IDOffset: resultIDOffset, TrailingTimeout: true},
}

// RequestIDAt reads the request id of a response block produced by fn.
func RequestIDAt(af AsyncFunc, ptr uintptr) int32 {
	return *(*int32)(unsafe.Add(unsafe.Pointer(ptr), af.IDOffset))
}

// WithCallback places cb among args the way fn expects it.
func WithCallback(af AsyncFunc, cb uintptr, args []uintptr) []uintptr {
	out := make([]uintptr, 0, len(args)+1)
	if af.TrailingTimeout && len(args) > 0 {
		out = append(out, args[:len(args)-1]...)
		out = append(out, cb, args[len(args)-1])
		return out
	}
	out = append(out, args...)
	return append(out, cb)
}
