package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls how the session manager hands audit events to a sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted in Dropped.
	DropIfFull bool
	// Now stamps events that arrive without a Timestamp. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Dispatcher forwards session events to a sink on a single goroutine, preserving emit order.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	now        func() time.Time
	logger     *zap.Logger
	dropIfFull bool

	queue   chan Event
	quit    chan struct{}
	stopped chan struct{}
	dropped atomic.Uint64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled.
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
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		sink:       sink,
		now:        cfg.Now,
		logger:     cfg.Logger.Named("audit"),
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)

	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-d.quit:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// deliver keeps the loop alive when a sink panics.
func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit sink panicked", zap.String("event_type", ev.EventType), zap.Any("panic", r))
		}
	}()
	d.sink.Emit(ctx, ev)
}

// Emit queues ev. In blocking mode it waits for buffer space until ctx is done.
// Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			if n := d.dropped.Add(1); n == 1 || n%1000 == 0 {
				d.logger.Warn("audit buffer full, dropping events",
					zap.String("event_type", ev.EventType),
					zap.Uint64("dropped_total", n),
				)
			}
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops accepting events and waits until queued ones reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.quit)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		<-d.stopped
	})
}

// Dropped reports how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
