package openiap

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openiap/openiap-go/internal/native"
	"github.com/openiap/openiap-go/internal/pump"
)

// SubscriptionKind tells what a Subscription delivers.
type SubscriptionKind string

const (
	WatchSubscription       SubscriptionKind = "watch"
	QueueSubscription       SubscriptionKind = "queue"
	ExchangeSubscription    SubscriptionKind = "exchange"
	ClientEventSubscription SubscriptionKind = "client_event"
)

type subKey struct {
	kind SubscriptionKind
	id   string
}

type runner interface {
	Stop()
	Err() error
	Done() <-chan struct{}
	State() pump.State
}

// Subscription is a live stream of events delivered to a callback. Events
// are delivered one at a time, in the order the core emitted them.
type Subscription struct {
	// ID is the watch id, queue name or event id the core assigned.
	ID   string
	Kind SubscriptionKind

	p          runner
	unregister func() error

	once sync.Once
	err  error
}

// Close unregisters the subscription on the server and stops delivery. The
// local pump is stopped even if unregistering fails; no callback starts
// after Close returns.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.err = s.unregister()
	})
	return s.err
}

// Err returns ErrSubscriptionLost if delivery stopped because the client
// went away.
func (s *Subscription) Err() error { return s.p.Err() }

// Done is closed once the subscription has stopped polling.
func (s *Subscription) Done() <-chan struct{} { return s.p.Done() }

// Active reports whether events are still being delivered.
func (s *Subscription) Active() bool {
	st := s.p.State()
	return st == pump.Active || st == pump.Draining
}

// subscribe starts a pump over next and tracks it under kind/id until it is
// unregistered.
func subscribe[E any](c *Client, kind SubscriptionKind, id, nextFn, freeFn string,
	decode func(b *native.Block) (E, bool), deliver func(E), unregister func() error) *Subscription {
	key := subKey{kind: kind, id: id}
	s := &Subscription{ID: id, Kind: kind}
	p := pump.New(pump.Config{
		Interval: c.cfg.PollInterval,
		MaxDrain: c.cfg.MaxDrainPerCycle,
		Name:     string(kind) + ":" + id,
		Logger:   c.log,
		OnLost:   func(error) { c.drop(key, s) },
	}, nextEvent(c, nextFn, freeFn, id, decode), deliver)
	s.p = p
	s.unregister = func() error {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
		err := unregister()
		p.Stop()
		if err != nil {
			c.log.Warn("unregister failed", zap.String("subscription", string(kind)+":"+id), zap.Error(err))
		}
		return err
	}

	c.mu.Lock()
	c.subs[key] = s
	c.mu.Unlock()
	p.Start(c.ctx)
	return s
}

// nextEvent pulls one event for id. The block is released before the event
// leaves the pump.
func nextEvent[E any](c *Client, fn, free, id string, decode func(*native.Block) (E, bool)) pump.Next[E] {
	return func() (E, bool, error) {
		var zero E
		_, release, err := c.h.Acquire()
		if err != nil {
			return zero, false, err
		}
		defer release()

		var a native.Arena
		defer a.Release()
		raw, err := c.lib.Call(fn, native.Addr(a.CString(id)))
		if err != nil {
			return zero, false, nativeFailure(fn, err)
		}
		block := c.h.Block(raw, free)
		defer block.Release()
		if block.IsNil() {
			return zero, false, nil
		}
		ev, ok := decode(block)
		return ev, ok, nil
	}
}

// forget stops local delivery for s without unregistering it on the
// server.
func (c *Client) forget(s *Subscription) {
	s.once.Do(func() {
		c.mu.Lock()
		delete(c.subs, subKey{kind: s.Kind, id: s.ID})
		c.mu.Unlock()
		s.p.Stop()
	})
}

// drop removes s from the live set if it is still registered under key.
func (c *Client) drop(key subKey, s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[key] == s {
		delete(c.subs, key)
	}
}

// lookup returns the subscription registered under kind/id, if any.
func (c *Client) lookup(kind SubscriptionKind, id string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[subKey{kind: kind, id: id}]
}

// Subscriptions returns the number of live subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
