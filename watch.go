package openiap

import (
	"encoding/json"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// WatchRequest opens a change stream on a collection.
type WatchRequest struct {
	Collection string
	// Paths limits the stream to documents matching these JSON paths.
	Paths []string
}

func (r WatchRequest) validate() error {
	if r.Collection == "" {
		return invalid("watch", "collection", "is required")
	}
	return nil
}

// WatchEvent is one change on a watched collection.
type WatchEvent struct {
	ID        string
	Operation string
	// Document is the changed document. It is copied out of the core's
	// event verbatim; use Decode to unmarshal it.
	Document json.RawMessage
}

// Decode unmarshals the changed document into v.
func (e WatchEvent) Decode(v any) error {
	if len(e.Document) == 0 {
		return invalid("watch", "document", "event carries no document")
	}
	return json.Unmarshal(e.Document, v)
}

// Watch registers a change stream and delivers its events to fn until the
// returned Subscription is closed.
func (c *Client) Watch(req WatchRequest, fn func(WatchEvent)) (*Subscription, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, invalid("watch", "callback", "is required")
	}
	paths := ""
	if len(req.Paths) > 0 {
		b, err := json.Marshal(req.Paths)
		if err != nil {
			return nil, invalid("watch", "paths", err.Error())
		}
		paths = string(b)
	}
	id, err := call[string]{
		op:   "watch",
		fn:   "watch",
		free: "free_watch_response",
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.WatchRequest{
				CollectionName: a.CString(req.Collection),
				Paths:          a.CString(paths),
			}))}
		},
		decode: decodeResult("watch"),
	}.run(c)
	if err != nil {
		return nil, err
	}

	return subscribe(c, WatchSubscription, id, "next_watch_event", "free_watch_event",
		decodeWatchEvent, fn, c.unwatch(id).exec(c)), nil
}

func decodeWatchEvent(b *native.Block) (WatchEvent, bool) {
	ev := native.View[native.WatchEvent](b)
	out := WatchEvent{
		ID:        native.GoString(ev.ID),
		Operation: native.GoString(ev.Operation),
	}
	if doc := native.GoString(ev.Document); doc != "" {
		out.Document = json.RawMessage(doc)
	}
	return out, out.ID != "" || out.Operation != ""
}

// unwatch is the native half of Unwatch. It returns a call so Unwatch and
// UnwatchAsync share it.
func (c *Client) unwatch(id string) call[struct{}] {
	return call[struct{}]{
		op:    "unwatch",
		fn:    "unwatch",
		async: "unwatch_async",
		free:  "free_unwatch_response",
		idArg: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(id))}
		},
		decode: decodeStatus("unwatch"),
	}
}

// Unwatch closes the change stream id. The server's error, if any, is
// returned, but local delivery stops either way.
func (c *Client) Unwatch(id string) error {
	if id == "" {
		return invalid("unwatch", "id", "is required")
	}
	if s := c.lookup(WatchSubscription, id); s != nil {
		return s.Close()
	}
	return c.unwatch(id).exec(c)()
}

// UnwatchAsync stops local delivery for id at once and unregisters the
// stream on the server in the background.
func (c *Client) UnwatchAsync(id string) *Future[struct{}] {
	if id == "" {
		return bridge.Failed[struct{}](invalid("unwatch", "id", "is required"))
	}
	if s := c.lookup(WatchSubscription, id); s != nil {
		c.forget(s)
	}
	return c.unwatch(id).start(c)
}
