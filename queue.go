package openiap

import (
	"time"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// RegisterQueueRequest registers a queue. An empty Name asks the server for
// a temporary queue.
type RegisterQueueRequest struct {
	Name string
}

// RegisterExchangeRequest declares an exchange and binds a temporary queue
// to it.
type RegisterExchangeRequest struct {
	Name string
	// Algorithm is "fanout", "direct", "topic" or "header".
	// Default: "fanout"
	Algorithm  string
	RoutingKey string
}

func (r *RegisterExchangeRequest) validate() error {
	if r.Name == "" {
		return invalid("register_exchange", "name", "is required")
	}
	if r.Algorithm == "" {
		r.Algorithm = "fanout"
	}
	switch r.Algorithm {
	case "fanout", "direct", "topic", "header":
	default:
		return invalid("register_exchange", "algorithm", "must be fanout, direct, topic or header")
	}
	return nil
}

// QueueEvent is a message received on a registered queue.
type QueueEvent struct {
	Queue         string
	CorrelationID string
	ReplyTo       string
	RoutingKey    string
	Exchange      string
	Data          string
}

// QueueMessageRequest sends a message to a queue or an exchange.
type QueueMessageRequest struct {
	Queue         string
	Exchange      string
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
	// Data is the message body, usually JSON.
	Data       string
	StripToken bool
	// Expiration drops the message if it is not consumed in time. Zero
	// never expires.
	Expiration time.Duration
}

func (r QueueMessageRequest) validate(op string) error {
	if r.Queue == "" && r.Exchange == "" {
		return invalid(op, "queue", "queue or exchange is required")
	}
	if r.Expiration < 0 {
		return invalid(op, "expiration", "must not be negative")
	}
	return nil
}

func (r QueueMessageRequest) toNative(a *native.Arena, id int32) *native.QueueMessageRequest {
	return native.Pin(a, &native.QueueMessageRequest{
		QueueName:     a.CString(r.Queue),
		CorrelationID: a.CString(r.CorrelationID),
		ReplyTo:       a.CString(r.ReplyTo),
		RoutingKey:    a.CString(r.RoutingKey),
		ExchangeName:  a.CString(r.Exchange),
		Data:          a.CString(r.Data),
		StripToken:    r.StripToken,
		Expiration:    int32(r.Expiration / time.Millisecond),
		RequestID:     id,
	})
}

// RegisterQueue registers a queue and delivers its messages to fn until the
// returned Subscription is closed. Subscription.ID is the queue name the
// server assigned.
func (c *Client) RegisterQueue(req RegisterQueueRequest, fn func(QueueEvent)) (*Subscription, error) {
	if fn == nil {
		return nil, invalid("register_queue", "callback", "is required")
	}
	name, err := call[string]{
		op:   "register_queue",
		fn:   "register_queue",
		free: "free_register_queue_response",
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.RegisterQueueRequest{
				QueueName: a.CString(req.Name),
			}))}
		},
		decode: decodeResult("register_queue"),
	}.run(c)
	if err != nil {
		return nil, err
	}
	return c.queueSubscription(QueueSubscription, name, fn), nil
}

// RegisterExchange declares an exchange and delivers the messages routed to
// its temporary queue to fn. Subscription.ID is that queue's name.
func (c *Client) RegisterExchange(req RegisterExchangeRequest, fn func(QueueEvent)) (*Subscription, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, invalid("register_exchange", "callback", "is required")
	}
	name, err := call[string]{
		op:   "register_exchange",
		fn:   "register_exchange",
		free: "free_register_exchange_response",
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.RegisterExchangeRequest{
				ExchangeName: a.CString(req.Name),
				Algorithm:    a.CString(req.Algorithm),
				RoutingKey:   a.CString(req.RoutingKey),
				AddQueue:     true,
			}))}
		},
		decode: decodeResult("register_exchange"),
	}.run(c)
	if err != nil {
		return nil, err
	}
	return c.queueSubscription(ExchangeSubscription, name, fn), nil
}

func (c *Client) queueSubscription(kind SubscriptionKind, name string, fn func(QueueEvent)) *Subscription {
	return subscribe(c, kind, name, "next_queue_event", "free_queue_event",
		decodeQueueEvent, fn, c.unregisterQueue(name).exec(c))
}

func decodeQueueEvent(b *native.Block) (QueueEvent, bool) {
	ev := native.View[native.QueueEvent](b)
	out := QueueEvent{
		Queue:         native.GoString(ev.QueueName),
		CorrelationID: native.GoString(ev.CorrelationID),
		ReplyTo:       native.GoString(ev.ReplyTo),
		RoutingKey:    native.GoString(ev.RoutingKey),
		Exchange:      native.GoString(ev.ExchangeName),
		Data:          native.GoString(ev.Data),
	}
	return out, out.Queue != "" || out.CorrelationID != "" || out.Data != ""
}

func (c *Client) unregisterQueue(name string) call[struct{}] {
	return call[struct{}]{
		op:   "unregister_queue",
		fn:   "unregister_queue",
		free: "free_unregister_queue_response",
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(name))}
		},
		decode: decodePlain("unregister_queue"),
	}
}

// UnregisterQueue removes the queue name registered by RegisterQueue or
// RegisterExchange and stops delivering its messages.
func (c *Client) UnregisterQueue(name string) error {
	if name == "" {
		return invalid("unregister_queue", "name", "is required")
	}
	for _, kind := range []SubscriptionKind{QueueSubscription, ExchangeSubscription} {
		if s := c.lookup(kind, name); s != nil {
			return s.Close()
		}
	}
	return c.unregisterQueue(name).exec(c)()
}

// QueueMessage sends a message without waiting for a reply.
func (c *Client) QueueMessage(req QueueMessageRequest) error {
	if err := req.validate("queue_message"); err != nil {
		return err
	}
	return call[struct{}]{
		op:   "queue_message",
		fn:   "queue_message",
		free: "free_queue_message_response",
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(req.toNative(a, 0))}
		},
		decode: decodePlain("queue_message"),
	}.exec(c)()
}

func rpcCall(req QueueMessageRequest, timeout time.Duration) call[string] {
	return call[string]{
		op:    "rpc",
		fn:    "rpc",
		async: "rpc_async",
		free:  "free_rpc_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(req.toNative(a, id)), uintptr(uint32(seconds(timeout)))}
		},
		decode: decodeResult("rpc"),
	}
}

// Rpc sends a message and waits for the reply sent to the client's reply
// queue. A zero timeout uses the client default.
func (c *Client) Rpc(req QueueMessageRequest, timeout time.Duration) (string, error) {
	if err := req.validate("rpc"); err != nil {
		return "", err
	}
	return rpcCall(req, timeout).run(c)
}

// RpcAsync is the asynchronous form of Rpc.
func (c *Client) RpcAsync(req QueueMessageRequest, timeout time.Duration) *Future[string] {
	if err := req.validate("rpc"); err != nil {
		return bridge.Failed[string](err)
	}
	return rpcCall(req, timeout).start(c)
}

// CustomCommandRequest runs a server command that has no dedicated
// operation.
type CustomCommandRequest struct {
	Command string
	ID      string
	Name    string
	// Data is the command's JSON argument.
	Data string
}

func (r CustomCommandRequest) validate() error {
	if r.Command == "" {
		return invalid("custom_command", "command", "is required")
	}
	return nil
}

func customCommandCall(req CustomCommandRequest, timeout time.Duration) call[string] {
	return call[string]{
		op:    "custom_command",
		fn:    "custom_command",
		async: "custom_command_async",
		free:  "free_custom_command_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.CustomCommandRequest{
				Command:   a.CString(req.Command),
				ID:        a.CString(req.ID),
				Name:      a.CString(req.Name),
				Data:      a.CString(req.Data),
				RequestID: id,
			})), uintptr(uint32(seconds(timeout)))}
		},
		decode: decodeResult("custom_command"),
	}
}

// CustomCommand runs req and returns the server's JSON result. A zero
// timeout uses the client default.
func (c *Client) CustomCommand(req CustomCommandRequest, timeout time.Duration) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return customCommandCall(req, timeout).run(c)
}

// CustomCommandAsync is the asynchronous form of CustomCommand.
func (c *Client) CustomCommandAsync(req CustomCommandRequest, timeout time.Duration) *Future[string] {
	if err := req.validate(); err != nil {
		return bridge.Failed[string](err)
	}
	return customCommandCall(req, timeout).start(c)
}
