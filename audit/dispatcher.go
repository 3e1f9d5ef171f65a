package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Dispatcher forwards events to a sink from a dedicated goroutine so the
// auth flows never wait on audit I/O. When the buffer is full the event is
// dropped and counted rather than applying back-pressure to a login.
type Dispatcher struct {
	sink      Sink
	log       zerolog.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher over sink with the given buffer size.
func NewDispatcher(sink Sink, buffer int, log zerolog.Logger) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}

	d := &Dispatcher{
		sink: sink,
		log:  log,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.ch:
			d.emit(event)
		case <-d.done:
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case event := <-d.ch:
					d.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) emit(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("action", event.Action).
				Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit enqueues event without blocking. Full-buffer drops are counted and
// logged at debug level.
func (d *Dispatcher) Emit(event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- event:
	case <-d.done:
	default:
		n := d.dropped.Add(1)
		d.log.Debug().Uint64("dropped_total", n).Str("action", event.Action).
			Msg("audit buffer full, event dropped")
	}
}

// Close drains the buffer and stops the dispatcher.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
