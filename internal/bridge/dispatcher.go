package bridge

import (
	"sync"

	"go.uber.org/zap"
)

type completion struct {
	id    int32
	op    string
	value any
	err   error
}

// Dispatcher moves completions off native threads. Enqueue never blocks; a
// single goroutine applies completions to the Registry in arrival order.
type Dispatcher struct {
	reg *Registry
	log *zap.Logger

	mu     sync.Mutex
	queue  []completion
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewDispatcher starts a dispatcher feeding reg.
func NewDispatcher(reg *Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		reg:    reg,
		log:    log,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules the completion of id. After Close it is dropped.
func (d *Dispatcher) Enqueue(id int32, op string, value any, err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Debug("completion after close dropped", zap.Int32("request_id", id), zap.String("op", op))
		return
	}
	d.queue = append(d.queue, completion{id: id, op: op, value: value, err: err})
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, c := range batch {
			d.apply(c)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-d.signal
		}
	}
}

func (d *Dispatcher) apply(c completion) {
	var ok bool
	if c.err != nil {
		ok = d.reg.Reject(c.id, c.err)
	} else {
		ok = d.reg.Resolve(c.id, c.value)
	}
	if ok {
		return
	}
	if op, late := d.reg.Late(c.id); late {
		d.log.Warn("late native callback discarded", zap.Int32("request_id", c.id), zap.String("op", op))
		return
	}
	d.log.Warn("native callback for unknown request", zap.Int32("request_id", c.id), zap.String("op", c.op))
}

// Close applies everything already queued and stops the dispatcher.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	<-d.done
}
