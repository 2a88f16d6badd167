// Package pump polls a native event queue and delivers events to a Go
// callback.
package pump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrSubscriptionLost stops a pump whose source went away underneath it.
var ErrSubscriptionLost = errors.New("subscription lost")

// State is the lifecycle position of a Pump.
type State int32

const (
	Requested State = iota
	Active
	Draining
	Cancelling
	Cancelled
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Cancelling:
		return "cancelling"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config tunes a Pump.
type Config struct {
	// Interval between drain cycles. Defaults to one second.
	Interval time.Duration
	// MaxDrain caps the events pulled per cycle; zero means until empty.
	MaxDrain int
	// Name identifies the subscription in logs.
	Name   string
	Logger *zap.Logger
	// OnLost runs once, on the polling goroutine, when Next fails and the
	// pump stops with ErrSubscriptionLost.
	OnLost func(error)
}

// Next pulls one event. ok is false when the queue is empty. A non-nil
// error means the source is gone and stops the pump.
type Next[E any] func() (event E, ok bool, err error)

// Pump drains a native queue on a ticker and hands each event to a delivery
// goroutine, so a slow callback never holds up the drain loop and a callback
// may Stop its own pump.
type Pump[E any] struct {
	cfg     Config
	log     *zap.Logger
	next    Next[E]
	deliver func(E)

	state    atomic.Int32
	cancel   context.CancelFunc
	quit     chan struct{}
	quitOnce sync.Once
	pollDone chan struct{}

	// deliverMu is held across the state check and the callback, so Stop
	// can wait out a delivery already in progress.
	deliverMu sync.Mutex
	deliverer atomic.Uint64
	stopped   atomic.Bool

	mu     sync.Mutex
	queue  []E
	err    error
	signal chan struct{}
}

// New returns a pump in the Requested state.
func New[E any](cfg Config, next Next[E], deliver func(E)) *Pump[E] {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pump[E]{
		cfg:      cfg,
		log:      log.With(zap.String("subscription", cfg.Name)),
		next:     next,
		deliver:  deliver,
		quit:     make(chan struct{}),
		pollDone: make(chan struct{}),
		signal:   make(chan struct{}, 1),
	}
}

// Start launches the polling and delivery goroutines. Only the first call
// has an effect.
func (p *Pump[E]) Start(ctx context.Context) {
	if !p.state.CompareAndSwap(int32(Requested), int32(Active)) {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.poll(ctx)
	go p.run()
	p.log.Debug("pump started", zap.Duration("interval", p.cfg.Interval))
}

// State returns the current state.
func (p *Pump[E]) State() State { return State(p.state.Load()) }

// Err returns ErrSubscriptionLost if the pump stopped because its source
// failed.
func (p *Pump[E]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the polling goroutine has exited.
func (p *Pump[E]) Done() <-chan struct{} { return p.pollDone }

func (p *Pump[E]) active() bool {
	s := p.State()
	return s == Active || s == Draining
}

// Stop cancels the pump and waits for the polling goroutine and for any
// callback in progress. Once Stop returns no further Next call is made and
// no callback runs. It is safe to call from the delivery callback, in which
// case only that callback may still be running when Stop returns. Calls after
// the first completed Stop return at once.
func (p *Pump[E]) Stop() {
	if p.stopped.Load() {
		return
	}
	for {
		s := p.State()
		if s == Cancelling || s == Cancelled {
			break
		}
		if p.state.CompareAndSwap(int32(s), int32(Cancelling)) {
			if s == Requested {
				close(p.pollDone)
			}
			break
		}
	}
	p.closeQuit()
	if p.cancel != nil {
		p.cancel()
	}
	<-p.pollDone
	if p.deliverer.Load() != goid() {
		p.deliverMu.Lock()
		defer p.deliverMu.Unlock()
	}
	p.state.Store(int32(Cancelled))
	p.stopped.Store(true)
}

func (p *Pump[E]) closeQuit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *Pump[E]) poll(ctx context.Context) {
	defer close(p.pollDone)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if !p.cycle() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle drains up to MaxDrain events. It reports false when the pump must
// stop.
func (p *Pump[E]) cycle() bool {
	if !p.state.CompareAndSwap(int32(Active), int32(Draining)) {
		return false
	}
	defer p.state.CompareAndSwap(int32(Draining), int32(Active))

	for n := 0; p.cfg.MaxDrain <= 0 || n < p.cfg.MaxDrain; n++ {
		if !p.active() {
			return false
		}
		ev, ok, err := p.next()
		if err != nil {
			p.fail(err)
			return false
		}
		if !ok {
			return true
		}
		if !p.active() {
			return false
		}
		p.enqueue(ev)
	}
	return true
}

func (p *Pump[E]) fail(err error) {
	lost := fmt.Errorf("%w: %w", ErrSubscriptionLost, err)
	p.mu.Lock()
	p.err = lost
	p.mu.Unlock()
	p.state.Store(int32(Cancelled))
	p.closeQuit()
	p.log.Warn("subscription lost", zap.Error(err))
	if p.cfg.OnLost != nil {
		p.cfg.OnLost(lost)
	}
}

func (p *Pump[E]) enqueue(ev E) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *Pump[E]) run() {
	p.deliverer.Store(goid())
	for {
		p.mu.Lock()
		var ev E
		has := len(p.queue) > 0
		if has {
			ev = p.queue[0]
			p.queue = p.queue[1:]
		}
		p.mu.Unlock()

		if !has {
			select {
			case <-p.signal:
				continue
			case <-p.quit:
				return
			}
		}
		p.deliverMu.Lock()
		if !p.active() {
			p.deliverMu.Unlock()
			return
		}
		p.safeDeliver(ev)
		p.deliverMu.Unlock()
	}
}

func (p *Pump[E]) safeDeliver(ev E) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("event callback panicked", zap.Any("panic", r))
		}
	}()
	p.deliver(ev)
}

// goid returns the current goroutine's id, parsed from the stack header
// "goroutine N [...]".
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
