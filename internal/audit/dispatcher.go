package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the emitting component.
	DropIfFull bool
	// DrainTimeout bounds how long Close keeps delivering queued events.
	// Zero drains everything.
	DrainTimeout time.Duration
	// OnDrop is called for every event that is never delivered.
	OnDrop func(Event)
}

// Dispatcher relays events to a sink on its own goroutine so components
// never wait on sink I/O. A disabled dispatcher is nil; every method
// accepts a nil receiver.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event

	// halt releases emitters blocked on a full queue once Close starts.
	halt    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped   atomic.Uint64
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		queue:   make(chan Event, cfg.BufferSize),
		halt:    make(chan struct{}),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	var deadline <-chan time.Time
	if d.cfg.DrainTimeout > 0 {
		t := time.NewTimer(d.cfg.DrainTimeout)
		defer t.Stop()
		deadline = t.C
	}

	expired := false
	for {
		select {
		case event := <-d.queue:
			if !expired {
				select {
				case <-deadline:
					expired = true
				default:
				}
			}
			if expired {
				d.drop(event)
				continue
			}
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event)
	}
}

// Emit queues event. With DropIfFull a full queue drops it; otherwise Emit
// waits for room until ctx ends or Close starts. Events emitted after
// Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.halt:
		d.drop(event)
	}
}

// Close stops accepting events and delivers what is queued, within
// DrainTimeout when one is set. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.halt)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
		<-d.stopped
	})
}

// Dropped counts events that were never delivered.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
