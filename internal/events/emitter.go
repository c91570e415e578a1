package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink delivers events somewhere. Delivery is at-least-once; sinks must
// tolerate duplicates.
type Sink interface {
	Deliver(ctx context.Context, event AgentEvent) error
}

// Emitter buffers events and dispatches them to sinks from a background
// goroutine. Emit never blocks: when the buffer is full the event is dropped
// and counted.
type Emitter struct {
	sinks   []Sink
	ch      chan AgentEvent
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
	timeout time.Duration
}

// NewEmitter creates an emitter with the given buffer size and sinks.
func NewEmitter(bufferSize int, sinks ...Sink) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	e := &Emitter{
		sinks:   sinks,
		ch:      make(chan AgentEvent, bufferSize),
		timeout: 10 * time.Second,
	}
	e.wg.Add(1)
	go e.dispatch()
	return e
}

// Emit enqueues an event. It returns immediately whether or not the event
// fits in the buffer.
func (e *Emitter) Emit(event AgentEvent) {
	select {
	case e.ch <- event:
	default:
		n := e.dropped.Add(1)
		if n%100 == 1 {
			slog.Warn("event buffer full, dropping", "kind", event.Kind, "dropped_total", n)
		}
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close drains the buffer, delivers what remains and stops the dispatcher.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.ch)
	})
	e.wg.Wait()
}

func (e *Emitter) dispatch() {
	defer e.wg.Done()
	for event := range e.ch {
		for _, sink := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			if err := sink.Deliver(ctx, event); err != nil {
				slog.Warn("event delivery failed",
					"kind", event.Kind,
					"event_id", event.EventID,
					"error", err)
			}
			cancel()
		}
	}
}
