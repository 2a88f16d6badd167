package nativetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unsafe"

	"github.com/openiap/openiap-go/internal/native"
)

type handler func(c *Core, args []uintptr, idArg int32) uintptr

type injectedError string

func (e injectedError) Error() string { return string(e) }

var handlers = map[string]handler{
	"create_client":              opCreateClient,
	"client_connect":             opConnect,
	"client_disconnect":          opDisconnect,
	"client_set_agent_name":      opSetAgentName,
	"client_set_agent_version":   opSetAgentVersion,
	"client_set_default_timeout": opSetDefaultTimeout,
	"client_get_default_timeout": opGetDefaultTimeout,
	"enable_tracing":             opEnableTracing,
	"disable_tracing":            opDisableTracing,
	"signin":                     opSignin,
	"client_user":                opUser,
	"query":                      opQuery,
	"aggregate":                  opAggregate,
	"count":                      opCount,
	"distinct":                   opDistinct,
	"insert_one":                 opInsertOne,
	"insert_many":                opInsertMany,
	"update_one":                 opUpdateOne,
	"insert_or_update_one":       opInsertOrUpdateOne,
	"delete_one":                 opDeleteOne,
	"delete_many":                opDeleteMany,
	"download":                   opDownload,
	"upload":                     opUpload,
	"list_collections":           opListCollections,
	"create_collection":          opCreateCollection,
	"drop_collection":            opDropCollection,
	"get_indexes":                opGetIndexes,
	"create_index":               opCreateIndex,
	"drop_index":                 opDropIndex,
	"watch":                      opWatch,
	"unwatch":                    opUnwatch,
	"next_watch_event":           opNextWatchEvent,
	"register_queue":             opRegisterQueue,
	"register_exchange":          opRegisterExchange,
	"unregister_queue":           opUnregisterQueue,
	"queue_message":              opQueueMessage,
	"next_queue_event":           opNextQueueEvent,
	"rpc":                        opRPC,
	"custom_command":             opCustomCommand,
	"push_workitem":              opPushWorkitem,
	"pop_workitem":               opPopWorkitem,
	"update_workitem":            opUpdateWorkitem,
	"delete_workitem":            opDeleteWorkitem,
	"on_client_event":            opOnClientEvent,
	"next_client_event":          opNextClientEvent,
	"off_client_event":           opOffClientEvent,
	"invoke_openrpa":             opInvokeOpenRPA,
	"set_u64_observable_gauge":   opSetU64Gauge,
	"set_i64_observable_gauge":   opSetI64Gauge,
	"disable_observable_gauge":   opDisableGauge,
	"error":                      logHandler("error"),
	"warn":                       logHandler("warn"),
	"info":                       logHandler("info"),
	"debug":                      logHandler("debug"),
	"trace":                      logHandler("trace"),
}

func str(addr uintptr) string { return native.GoString(ptrOf[byte](addr)) }

func pickID(reqID, idArg int32) int32 {
	if idArg >= 0 {
		return idArg
	}
	return reqID
}

// exec runs an operation on a connected client after applying any injected
// failure.
func (c *Core) exec(op string, client uintptr, run func(*clientState) error) error {
	if msg, ok := c.failure(op); ok {
		return injectedError(msg)
	}
	st, err := c.client(client)
	if err != nil {
		return err
	}
	return run(st)
}

func isInjected(err error) bool {
	var inj injectedError
	return errors.As(err, &inj)
}

func (c *Core) statusBlock(free string, id int32, err error) uintptr {
	a := &allocation{free: free}
	resp := &native.StatusResponse{Success: err == nil, RequestID: id}
	if err != nil {
		resp.Error = a.str(err.Error())
	}
	return c.track(a, unsafe.Pointer(resp))
}

func (c *Core) resultBlock(free string, id int32, out string, err error) uintptr {
	a := &allocation{free: free}
	resp := &native.ResultResponse{Success: err == nil, RequestID: id}
	switch {
	case err == nil:
		resp.Result = a.str(out)
	case isInjected(err):
		resp.Result = a.str("{not json")
	}
	if err != nil {
		resp.Error = a.str(err.Error())
	}
	return c.track(a, unsafe.Pointer(resp))
}

func (c *Core) countBlock(free string, id int32, n int, err error) uintptr {
	a := &allocation{free: free}
	resp := &native.CountResponse{Success: err == nil, Result: int32(n), RequestID: id}
	if err != nil {
		resp.Result = -1
		resp.Error = a.str(err.Error())
	}
	return c.track(a, unsafe.Pointer(resp))
}

func (c *Core) plainBlock(free string, err error) uintptr {
	a := &allocation{free: free}
	resp := &native.PlainResponse{Success: err == nil}
	if err != nil {
		resp.Error = a.str(err.Error())
	}
	return c.track(a, unsafe.Pointer(resp))
}

func (c *Core) workitemBlock(free string, id int32, rec *workitemRecord, err error) uintptr {
	a := &allocation{free: free}
	resp := &native.WorkitemResponse{Success: err == nil, RequestID: id}
	if err != nil {
		resp.Error = a.str(err.Error())
	}
	if err == nil && rec != nil {
		resp.Workitem = a.workitem(rec)
	}
	return c.track(a, unsafe.Pointer(resp))
}

func opCreateClient(c *Core, _ []uintptr, _ int32) uintptr {
	a := &allocation{free: "free_client"}
	w := &native.ClientWrapper{Success: true}
	if msg, failed := c.failure("create_client"); failed {
		w.Success = false
		w.Error = a.str(msg)
		return c.track(a, unsafe.Pointer(w))
	}
	addr := c.track(a, unsafe.Pointer(w))
	c.clients[addr] = &clientState{wrapper: w, timeout: 60}
	return addr
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("server address is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "grpc", "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" || strings.HasSuffix(u.Hostname(), ".invalid") {
		return fmt.Errorf("failed to connect to %s: connection refused", raw)
	}
	return nil
}

func opConnect(c *Core, args []uintptr, idArg int32) uintptr {
	var err error
	if msg, failed := c.failure("client_connect"); failed {
		err = injectedError(msg)
	} else if st, ok := c.clients[args[0]]; !ok {
		err = errors.New("invalid client")
	} else if err = checkURL(str(args[1])); err == nil {
		st.url = str(args[1])
		st.connected = true
		c.emitClientEvent(args[0], "Connected", "")
	}
	return c.statusBlock("free_connect_response", pickID(0, idArg), err)
}

func opDisconnect(c *Core, args []uintptr, _ int32) uintptr {
	if st, ok := c.clients[args[0]]; ok && st.connected {
		st.connected = false
		c.emitClientEvent(args[0], "Disconnected", "client disconnected")
	}
	return 0
}

func opSetAgentName(c *Core, args []uintptr, _ int32) uintptr {
	if st, ok := c.clients[args[0]]; ok {
		st.agent = str(args[1])
	}
	return 0
}

func opSetAgentVersion(c *Core, args []uintptr, _ int32) uintptr {
	if st, ok := c.clients[args[0]]; ok {
		st.version = str(args[1])
	}
	return 0
}

func opSetDefaultTimeout(c *Core, args []uintptr, _ int32) uintptr {
	if st, ok := c.clients[args[0]]; ok {
		st.timeout = int32(args[1])
	}
	return 0
}

func opGetDefaultTimeout(c *Core, args []uintptr, _ int32) uintptr {
	if st, ok := c.clients[args[0]]; ok {
		return uintptr(uint32(st.timeout))
	}
	return 0
}

func opEnableTracing(c *Core, args []uintptr, _ int32) uintptr {
	c.tracing = append(c.tracing, "enable:"+str(args[0])+":"+str(args[1]))
	return 0
}

func opDisableTracing(c *Core, _ []uintptr, _ int32) uintptr {
	c.tracing = append(c.tracing, "disable")
	return 0
}

func opSignin(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.SigninRequest](args[1])
	var jwt string
	err := c.exec("signin", args[0], func(st *clientState) error {
		var u *userRecord
		if token := native.GoString(req.JWT); token != "" {
			u = c.users[strings.TrimPrefix(token, "jwt-")]
			if u == nil || !strings.HasPrefix(token, "jwt-") {
				return errors.New("invalid jwt")
			}
		} else {
			u = c.users[native.GoString(req.Username)]
			if u == nil || u.password != native.GoString(req.Password) {
				return errors.New("invalid username or password")
			}
		}
		jwt = "jwt-" + u.username
		if !req.ValidateOnly {
			st.user = u
			c.emitClientEvent(args[0], "SignedIn", "")
		}
		return nil
	})
	return c.resultBlock("free_signin_response", pickID(req.RequestID, idArg), jwt, err)
}

func opUser(c *Core, args []uintptr, _ int32) uintptr {
	st, ok := c.clients[args[0]]
	if !ok || st.user == nil {
		return 0
	}
	a := &allocation{free: "free_user"}
	u := &native.User{
		ID:       a.str(st.user.id),
		Name:     a.str(st.user.name),
		Username: a.str(st.user.username),
		Email:    a.str(st.user.email),
		Roles:    a.strs(st.user.roles),
		RolesLen: int32(len(st.user.roles)),
	}
	return c.track(a, unsafe.Pointer(u))
}

func opQuery(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.QueryRequest](args[1])
	var out string
	err := c.exec("query", args[0], func(*clientState) (err error) {
		out, err = c.query(native.GoString(req.CollectionName), native.GoString(req.Query),
			native.GoString(req.Projection), native.GoString(req.OrderBy), int(req.Skip), int(req.Top))
		return err
	})
	return c.resultBlock("free_query_response", pickID(req.RequestID, idArg), out, err)
}

func opAggregate(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.AggregateRequest](args[1])
	var out string
	err := c.exec("aggregate", args[0], func(*clientState) (err error) {
		out, err = c.aggregate(native.GoString(req.CollectionName), native.GoString(req.Aggregates))
		return err
	})
	return c.resultBlock("free_aggregate_response", pickID(req.RequestID, idArg), out, err)
}

func opCount(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.CountRequest](args[1])
	var n int
	err := c.exec("count", args[0], func(*clientState) (err error) {
		n, err = c.count(native.GoString(req.CollectionName), native.GoString(req.Query))
		return err
	})
	return c.countBlock("free_count_response", pickID(req.RequestID, idArg), n, err)
}

func opDistinct(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.DistinctRequest](args[1])
	var out []string
	err := c.exec("distinct", args[0], func(*clientState) (err error) {
		out, err = c.distinct(native.GoString(req.CollectionName), native.GoString(req.Field), native.GoString(req.Query))
		return err
	})
	a := &allocation{free: "free_distinct_response"}
	resp := &native.DistinctResponse{Success: err == nil, RequestID: pickID(req.RequestID, idArg)}
	if err != nil {
		resp.Error = a.str(err.Error())
	} else {
		resp.Results = a.strs(out)
		resp.ResultsLen = int32(len(out))
	}
	return c.track(a, unsafe.Pointer(resp))
}

func opInsertOne(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.InsertOneRequest](args[1])
	var out string
	err := c.exec("insert_one", args[0], func(*clientState) error {
		doc, err := parseObject(native.GoString(req.Item))
		if err != nil {
			return err
		}
		out = toJSON(c.insert(native.GoString(req.CollectionName), doc))
		return nil
	})
	return c.resultBlock("free_insert_one_response", pickID(req.RequestID, idArg), out, err)
}

func opInsertMany(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.InsertManyRequest](args[1])
	var out string
	err := c.exec("insert_many", args[0], func(*clientState) error {
		var docs []document
		if err := json.Unmarshal([]byte(native.GoString(req.Items)), &docs); err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
		coll := native.GoString(req.CollectionName)
		inserted := make([]document, 0, len(docs))
		for _, d := range docs {
			inserted = append(inserted, c.insert(coll, d))
		}
		if req.SkipResults {
			inserted = []document{}
		}
		out = toJSON(inserted)
		return nil
	})
	return c.resultBlock("free_insert_many_response", pickID(req.RequestID, idArg), out, err)
}

func opUpdateOne(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.InsertOneRequest](args[1])
	var out string
	err := c.exec("update_one", args[0], func(*clientState) error {
		doc, err := parseObject(native.GoString(req.Item))
		if err != nil {
			return err
		}
		updated, err := c.replace(native.GoString(req.CollectionName), doc)
		if err != nil {
			return err
		}
		out = toJSON(updated)
		return nil
	})
	return c.resultBlock("free_update_one_response", pickID(req.RequestID, idArg), out, err)
}

func opInsertOrUpdateOne(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.InsertOrUpdateOneRequest](args[1])
	var out string
	err := c.exec("insert_or_update_one", args[0], func(*clientState) error {
		doc, err := parseObject(native.GoString(req.Item))
		if err != nil {
			return err
		}
		out = toJSON(c.upsert(native.GoString(req.CollectionName), native.GoString(req.Uniqueness), doc))
		return nil
	})
	return c.resultBlock("free_insert_or_update_one_response", pickID(req.RequestID, idArg), out, err)
}

func opDeleteOne(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.DeleteOneRequest](args[1])
	var n int
	err := c.exec("delete_one", args[0], func(*clientState) error {
		id := native.GoString(req.ID)
		n = c.remove(native.GoString(req.CollectionName), func(d document) bool { return d["_id"] == id })
		return nil
	})
	return c.countBlock("free_delete_one_response", pickID(req.RequestID, idArg), n, err)
}

func opDeleteMany(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.DeleteManyRequest](args[1])
	var n int
	err := c.exec("delete_many", args[0], func(*clientState) error {
		coll := native.GoString(req.CollectionName)
		if ids := native.TerminatedStrings(req.IDs); len(ids) > 0 {
			set := make(map[any]bool, len(ids))
			for _, id := range ids {
				set[id] = true
			}
			n = c.remove(coll, func(d document) bool { return set[d["_id"]] })
			return nil
		}
		filter, err := parseObject(native.GoString(req.Query))
		if err != nil {
			return err
		}
		if len(filter) == 0 {
			return errors.New("query or ids is required")
		}
		n = c.remove(coll, func(d document) bool { return matches(d, filter) })
		return nil
	})
	return c.countBlock("free_delete_many_response", pickID(req.RequestID, idArg), n, err)
}

func opDownload(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.DownloadRequest](args[1])
	var out string
	err := c.exec("download", args[0], func(*clientState) (err error) {
		folder := native.GoString(req.Folder)
		if folder == "" {
			folder = "."
		}
		out, err = c.download(native.GoString(req.ID), folder, native.GoString(req.Filename))
		return err
	})
	return c.resultBlock("free_download_response", pickID(req.RequestID, idArg), out, err)
}

func opUpload(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.UploadRequest](args[1])
	var out string
	err := c.exec("upload", args[0], func(*clientState) (err error) {
		out, err = c.upload(native.GoString(req.FilePath), native.GoString(req.Filename),
			native.GoString(req.MimeType), native.GoString(req.Metadata), native.GoString(req.CollectionName))
		return err
	})
	return c.resultBlock("free_upload_response", pickID(req.RequestID, idArg), out, err)
}

func opListCollections(c *Core, args []uintptr, idArg int32) uintptr {
	var out string
	err := c.exec("list_collections", args[0], func(*clientState) error {
		out = c.listCollections()
		return nil
	})
	return c.resultBlock("free_list_collections_response", pickID(0, idArg), out, err)
}

func opCreateCollection(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.CreateCollectionRequest](args[1])
	err := c.exec("create_collection", args[0], func(*clientState) error {
		name := native.GoString(req.CollectionName)
		if name == "" {
			return errors.New("collectionname is required")
		}
		if c.coll(name, false) != nil {
			return fmt.Errorf("collection %s already exists", name)
		}
		coll := c.coll(name, true)
		if req.Timeseries != nil {
			coll.kind = "timeseries"
		}
		return nil
	})
	return c.statusBlock("free_create_collection_response", pickID(req.RequestID, idArg), err)
}

func opDropCollection(c *Core, args []uintptr, idArg int32) uintptr {
	err := c.exec("drop_collection", args[0], func(*clientState) error {
		delete(c.collections, str(args[1]))
		return nil
	})
	return c.statusBlock("free_drop_collection_response", pickID(0, idArg), err)
}

func opGetIndexes(c *Core, args []uintptr, idArg int32) uintptr {
	var out string
	err := c.exec("get_indexes", args[0], func(*clientState) error {
		coll := c.coll(str(args[1]), false)
		if coll == nil {
			return fmt.Errorf("ns does not exist: %s", str(args[1]))
		}
		out = toJSON(coll.indexes)
		return nil
	})
	return c.resultBlock("free_get_indexes_response", pickID(0, idArg), out, err)
}

func opCreateIndex(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.CreateIndexRequest](args[1])
	err := c.exec("create_index", args[0], func(*clientState) error {
		key, err := parseObject(native.GoString(req.Index))
		if err != nil {
			return err
		}
		if len(key) == 0 {
			return errors.New("index is required")
		}
		name := native.GoString(req.Name)
		if name == "" {
			parts := make([]string, 0, len(key))
			for k, v := range key {
				parts = append(parts, fmt.Sprintf("%s_%v", k, v))
			}
			name = strings.Join(parts, "_")
		}
		coll := c.coll(native.GoString(req.CollectionName), true)
		coll.indexes = append(coll.indexes, document{"name": name, "key": key})
		return nil
	})
	return c.statusBlock("free_create_index_response", pickID(req.RequestID, idArg), err)
}

func opDropIndex(c *Core, args []uintptr, idArg int32) uintptr {
	err := c.exec("drop_index", args[0], func(*clientState) error {
		coll := c.coll(str(args[1]), false)
		name := str(args[2])
		if coll != nil {
			for i, ix := range coll.indexes {
				if ix["name"] == name {
					coll.indexes = append(coll.indexes[:i], coll.indexes[i+1:]...)
					return nil
				}
			}
		}
		return fmt.Errorf("index not found with name [%s]", name)
	})
	return c.statusBlock("free_drop_index_response", pickID(0, idArg), err)
}

func opWatch(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.WatchRequest](args[1])
	var out string
	err := c.exec("watch", args[0], func(*clientState) error {
		coll := native.GoString(req.CollectionName)
		if coll == "" {
			return errors.New("collectionname is required")
		}
		out = newID()
		c.watches[out] = coll
		return nil
	})
	return c.resultBlock("free_watch_response", pickID(req.RequestID, idArg), out, err)
}

func opUnwatch(c *Core, args []uintptr, idArg int32) uintptr {
	err := c.exec("unwatch", args[0], func(*clientState) error {
		id := str(args[1])
		if _, ok := c.watches[id]; !ok {
			return fmt.Errorf("watch %s not found", id)
		}
		delete(c.watches, id)
		return nil
	})
	return c.statusBlock("free_unwatch_response", pickID(0, idArg), err)
}

func opNextWatchEvent(c *Core, args []uintptr, _ int32) uintptr {
	a := &allocation{free: "free_watch_event"}
	ev := &native.WatchEvent{}
	id := str(args[0])
	if q := c.watchEvents[id]; len(q) > 0 {
		e := q[0]
		c.watchEvents[id] = q[1:]
		ev.ID = a.str(e.id)
		ev.Operation = a.str(e.operation)
		ev.Document = a.str(e.document)
	}
	return c.track(a, unsafe.Pointer(ev))
}

func opRegisterQueue(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.RegisterQueueRequest](args[1])
	var out string
	err := c.exec("register_queue", args[0], func(*clientState) error {
		out = native.GoString(req.QueueName)
		if out == "" {
			out = "q-" + newID()
		}
		c.queues[out] = true
		return nil
	})
	return c.resultBlock("free_register_queue_response", pickID(req.RequestID, idArg), out, err)
}

func opRegisterExchange(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.RegisterExchangeRequest](args[1])
	var out string
	err := c.exec("register_exchange", args[0], func(*clientState) error {
		name := native.GoString(req.ExchangeName)
		if name == "" {
			return errors.New("exchangename is required")
		}
		ex, ok := c.exchanges[name]
		if !ok {
			ex = &exchange{algorithm: native.GoString(req.Algorithm), routingKey: native.GoString(req.RoutingKey)}
			c.exchanges[name] = ex
		}
		if req.AddQueue {
			out = "x-" + newID()
			c.queues[out] = true
			ex.queues = append(ex.queues, out)
		}
		return nil
	})
	return c.resultBlock("free_register_exchange_response", pickID(req.RequestID, idArg), out, err)
}

func opUnregisterQueue(c *Core, args []uintptr, _ int32) uintptr {
	err := c.exec("unregister_queue", args[0], func(*clientState) error {
		name := str(args[1])
		if !c.queues[name] {
			return fmt.Errorf("queue %s is not registered", name)
		}
		delete(c.queues, name)
		for _, ex := range c.exchanges {
			for i, q := range ex.queues {
				if q == name {
					ex.queues = append(ex.queues[:i], ex.queues[i+1:]...)
					break
				}
			}
		}
		return nil
	})
	return c.plainBlock("free_unregister_queue_response", err)
}

func queueEventOf(req *native.QueueMessageRequest) queueEvent {
	return queueEvent{
		correlationID: native.GoString(req.CorrelationID),
		replyTo:       native.GoString(req.ReplyTo),
		routingKey:    native.GoString(req.RoutingKey),
		exchange:      native.GoString(req.ExchangeName),
		data:          native.GoString(req.Data),
	}
}

func opQueueMessage(c *Core, args []uintptr, _ int32) uintptr {
	req := ptrOf[native.QueueMessageRequest](args[1])
	err := c.exec("queue_message", args[0], func(*clientState) error {
		queue, ex := native.GoString(req.QueueName), native.GoString(req.ExchangeName)
		if queue == "" && ex == "" {
			return errors.New("queuename or exchangename is required")
		}
		c.queueMessage(queue, ex, native.GoString(req.RoutingKey), queueEventOf(req))
		return nil
	})
	return c.plainBlock("free_queue_message_response", err)
}

func opNextQueueEvent(c *Core, args []uintptr, _ int32) uintptr {
	a := &allocation{free: "free_queue_event"}
	ev := &native.QueueEvent{}
	name := str(args[0])
	if q := c.queueEvents[name]; len(q) > 0 {
		e := q[0]
		c.queueEvents[name] = q[1:]
		ev.QueueName = a.str(e.queue)
		ev.CorrelationID = a.str(e.correlationID)
		ev.ReplyTo = a.str(e.replyTo)
		ev.RoutingKey = a.str(e.routingKey)
		ev.ExchangeName = a.str(e.exchange)
		ev.Data = a.str(e.data)
	}
	return c.track(a, unsafe.Pointer(ev))
}

func opRPC(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.QueueMessageRequest](args[1])
	var out string
	err := c.exec("rpc", args[0], func(*clientState) (err error) {
		queue := native.GoString(req.QueueName)
		fn, ok := c.rpc[queue]
		if !ok {
			return fmt.Errorf("timeout waiting for reply from %s", queue)
		}
		out, err = fn(native.GoString(req.Data))
		return err
	})
	return c.resultBlock("free_rpc_response", pickID(req.RequestID, idArg), out, err)
}

func opCustomCommand(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.CustomCommandRequest](args[1])
	var out string
	err := c.exec("custom_command", args[0], func(*clientState) (err error) {
		cmd := native.GoString(req.Command)
		if cmd == "" {
			return errors.New("command is required")
		}
		fn, ok := c.command[cmd]
		if !ok {
			out = native.GoString(req.Data)
			return nil
		}
		out, err = fn(native.GoString(req.ID), native.GoString(req.Name), native.GoString(req.Data))
		return err
	})
	return c.resultBlock("free_custom_command_response", pickID(req.RequestID, idArg), out, err)
}

func opOnClientEvent(c *Core, args []uintptr, _ int32) uintptr {
	a := &allocation{free: "free_event_response"}
	resp := &native.EventResponse{}
	err := c.exec("on_client_event", args[0], func(*clientState) error {
		id := newID()
		c.eventSubs[id] = &eventSub{client: args[0]}
		resp.EventID = a.str(id)
		return nil
	})
	resp.Success = err == nil
	if err != nil {
		resp.Error = a.str(err.Error())
	}
	return c.track(a, unsafe.Pointer(resp))
}

func opNextClientEvent(c *Core, args []uintptr, _ int32) uintptr {
	a := &allocation{free: "free_client_event"}
	ev := &native.ClientEvent{}
	if sub, ok := c.eventSubs[str(args[0])]; ok && len(sub.events) > 0 {
		e := sub.events[0]
		sub.events = sub.events[1:]
		ev.Event = a.str(e.event)
		ev.Reason = a.str(e.reason)
	}
	return c.track(a, unsafe.Pointer(ev))
}

func opOffClientEvent(c *Core, args []uintptr, _ int32) uintptr {
	var err error
	id := str(args[0])
	if msg, failed := c.failure("off_client_event"); failed {
		err = injectedError(msg)
	} else if _, ok := c.eventSubs[id]; !ok {
		err = fmt.Errorf("client event %s not found", id)
	} else {
		delete(c.eventSubs, id)
	}
	return c.plainBlock("free_off_event_response", err)
}
