package application

import (
	"sync"

	"github.com/defilive/vaultd/internal/core/domain"
	"github.com/google/uuid"
)

type listener[T any] struct {
	id string
	ch chan T
}

type listenerHandler[T any] struct {
	lock      sync.Mutex
	listeners []*listener[T]
}

func newListenerHandler[T any]() *listenerHandler[T] {
	return &listenerHandler[T]{listeners: make([]*listener[T], 0)}
}

func (h *listenerHandler[T]) pushListener(l *listener[T]) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *listenerHandler[T]) removeListener(id string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for i, l := range h.listeners {
		if l.id == id {
			close(l.ch)
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// broadcast delivers to every listener that can accept the message right
// now. A listener with a full buffer is skipped rather than blocking the
// publisher; it will catch up on the next event.
func (h *listenerHandler[T]) broadcast(msg T) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, l := range h.listeners {
		select {
		case l.ch <- msg:
		default:
		}
	}
}

// EventBroker fans challenge events out to all subscribed real-time
// listeners. A broken listener never affects the others or the publisher.
type EventBroker struct {
	handler *listenerHandler[domain.Event]
}

func NewEventBroker() *EventBroker {
	return &EventBroker{handler: newListenerHandler[domain.Event]()}
}

// Subscribe registers a listener and returns its id and receive channel.
// The channel is closed on Unsubscribe.
func (b *EventBroker) Subscribe(buffer int) (string, <-chan domain.Event) {
	l := &listener[domain.Event]{
		id: uuid.NewString(),
		ch: make(chan domain.Event, buffer),
	}
	b.handler.pushListener(l)
	return l.id, l.ch
}

func (b *EventBroker) Unsubscribe(id string) {
	b.handler.removeListener(id)
}

func (b *EventBroker) Publish(event domain.Event) {
	b.handler.broadcast(event)
}
