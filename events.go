package openiap

import (
	"github.com/openiap/openiap-go/internal/native"
)

// ClientEvent is a change in the client's connection lifecycle, such as
// "Connecting", "Connected", "Disconnected" or "SignedIn".
type ClientEvent struct {
	Event  string
	Reason string
}

// OnClientEvent delivers lifecycle events to fn until the returned
// Subscription is closed.
func (c *Client) OnClientEvent(fn func(ClientEvent)) (*Subscription, error) {
	if fn == nil {
		return nil, invalid("on_client_event", "callback", "is required")
	}
	id, err := call[string]{
		op:   "on_client_event",
		fn:   "on_client_event",
		free: "free_event_response",
		encode: func(*native.Arena, int32) []uintptr {
			return nil
		},
		decode: func(b *native.Block) (string, error) {
			r := native.View[native.EventResponse](b)
			if !r.Success {
				return "", failed("on_client_event", r.Error)
			}
			return native.GoString(r.EventID), nil
		},
	}.run(c)
	if err != nil {
		return nil, err
	}
	return subscribe(c, ClientEventSubscription, id, "next_client_event", "free_client_event",
		decodeClientEvent, fn, c.offClientEvent(id).exec(c)), nil
}

func decodeClientEvent(b *native.Block) (ClientEvent, bool) {
	ev := native.View[native.ClientEvent](b)
	out := ClientEvent{
		Event:  native.GoString(ev.Event),
		Reason: native.GoString(ev.Reason),
	}
	return out, out.Event != ""
}

func (c *Client) offClientEvent(id string) call[struct{}] {
	return call[struct{}]{
		op:       "off_client_event",
		fn:       "off_client_event",
		free:     "free_off_event_response",
		detached: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(id))}
		},
		decode: decodePlain("off_client_event"),
	}
}

// OffClientEvent stops the lifecycle subscription id.
func (c *Client) OffClientEvent(id string) error {
	if id == "" {
		return invalid("off_client_event", "id", "is required")
	}
	if s := c.lookup(ClientEventSubscription, id); s != nil {
		return s.Close()
	}
	return c.offClientEvent(id).exec(c)()
}
