package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Overflow selects what Emit does when the queue is full.
type Overflow int

const (
	// Block waits for room, the caller's context, or Close.
	Block Overflow = iota
	// Drop discards the event and counts it under its EventType.
	Drop
)

// Config controls the dispatcher queue.
type Config struct {
	Enabled    bool
	BufferSize int
	Overflow   Overflow
	// Logger reports sink panics and the drop summary on Close.
	// Nil means zerolog.Nop().
	Logger *zerolog.Logger
}

// Dispatcher relays events to a sink from one worker goroutine, so account
// and session operations never wait on sink I/O unless Overflow is Block.
type Dispatcher struct {
	sink   Sink
	policy Overflow
	logger zerolog.Logger

	mu        sync.RWMutex
	closed    bool
	queue     chan Event
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once

	dropped atomic.Uint64
	dropsMu sync.Mutex
	drops   map[string]uint64
}

// NewDispatcher starts a dispatcher. It returns nil when auditing is
// disabled; a nil *Dispatcher is safe to use and discards everything.
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
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "audit_dispatcher").Logger()
	}

	d := &Dispatcher{
		sink:   sink,
		policy: cfg.Overflow,
		logger: logger,
		queue:  make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		drops:  make(map[string]uint64),
	}
	go d.worker()
	return d
}

// worker delivers until the queue is closed and empty.
func (d *Dispatcher) worker() {
	defer close(d.exited)

	ctx := context.Background()
	for event := range d.queue {
		d.deliver(ctx, event)
	}
}

// deliver isolates the worker from a panicking sink.
func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("event", event.EventType).
				Str("target", event.Target).
				Msg("audit sink panicked; event lost")
		}
	}()
	d.sink.Emit(ctx, event)
}

// Emit queues event. After Close it is a no-op.
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

	if d.policy == Drop {
		select {
		case d.queue <- event:
		default:
			d.countDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *Dispatcher) countDrop(eventType string) {
	d.dropped.Add(1)
	d.dropsMu.Lock()
	d.drops[eventType]++
	d.dropsMu.Unlock()
}

// Close stops accepting events, delivers what is queued and waits for the
// worker. Blocked Emit calls return once Close starts.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(d.shutdown)
	<-d.exited
}

func (d *Dispatcher) shutdown() {
	// Blocked emitters hold the read lock; wake them first.
	close(d.done)

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.exited

	if n := d.dropped.Load(); n > 0 {
		summary := zerolog.Dict()
		for eventType, count := range d.DroppedByType() {
			summary = summary.Uint64(eventType, count)
		}
		d.logger.Warn().
			Uint64("dropped", n).
			Dict("by_event", summary).
			Msg("audit events dropped while queue was full")
	}
}

// Dropped returns the total number of events discarded under Drop.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by EventType.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropsMu.Lock()
	defer d.dropsMu.Unlock()
	for k, v := range d.drops {
		out[k] = v
	}
	return out
}
