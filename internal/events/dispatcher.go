package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	logger    *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the given event. A failing
// handler is logged and does not stop the others.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

type bufferKey struct{}

// Buffer holds events raised inside a unit of work until it commits.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// WithBuffer attaches a new Buffer to ctx. When ctx already carries one the
// returned Buffer is nil and events keep collecting in the outer buffer.
func WithBuffer(ctx context.Context) (context.Context, *Buffer) {
	if _, ok := ctx.Value(bufferKey{}).(*Buffer); ok {
		return ctx, nil
	}
	buf := &Buffer{}
	return context.WithValue(ctx, bufferKey{}, buf), buf
}

// Flush publishes the buffered events in order and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, d Dispatcher) {
	if b == nil {
		return
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if d == nil {
		return
	}
	for _, event := range pending {
		_ = d.Publish(ctx, event)
	}
}

// Discard drops the buffered events.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Len reports how many events are waiting.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Emit stamps event and either buffers it (when ctx carries a Buffer) or
// publishes it right away.
func Emit(ctx context.Context, d Dispatcher, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if buf, ok := ctx.Value(bufferKey{}).(*Buffer); ok {
		buf.mu.Lock()
		buf.events = append(buf.events, event)
		buf.mu.Unlock()
		return
	}
	if d != nil {
		_ = d.Publish(ctx, event)
	}
}
