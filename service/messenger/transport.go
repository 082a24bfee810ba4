package messenger

import (
	"context"
	"sync"

	"github.com/stepflow/stepflow/service/messaging"
	"github.com/stepflow/stepflow/service/messaging/memory"
)

// Transport delivers events to a session, keyed by session id. The wire
// format beyond the event type vocabulary is owned by the implementation.
type Transport interface {
	Send(ctx context.Context, sessionID string, event *Event) error
}

// Hub is an in-process Transport that multiplexes events into one queue per
// session. Consumers subscribe with the session id and drain events in
// emission order.
type Hub struct {
	queues map[string]messaging.Queue[Event]
	config memory.Config
	mux    sync.Mutex
}

// NewHub creates a hub with per-session queues using the supplied queue config.
func NewHub(config memory.Config) *Hub {
	return &Hub{
		queues: map[string]messaging.Queue[Event]{},
		config: config,
	}
}

// Send enqueues the event for the session.
func (h *Hub) Send(ctx context.Context, sessionID string, event *Event) error {
	return h.Queue(sessionID).Publish(ctx, event)
}

// Queue returns the session queue, creating it on first use.
func (h *Hub) Queue(sessionID string) messaging.Queue[Event] {
	h.mux.Lock()
	defer h.mux.Unlock()
	queue, ok := h.queues[sessionID]
	if !ok {
		queue = memory.NewQueue[Event](h.config)
		h.queues[sessionID] = queue
	}
	return queue
}

// Receive consumes and acknowledges the next event for the session, blocking
// until one arrives or ctx is done.
func (h *Hub) Receive(ctx context.Context, sessionID string) (*Event, error) {
	msg, err := h.Queue(sessionID).Consume(ctx)
	if err != nil {
		return nil, err
	}
	if err := msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}

var _ Transport = (*Hub)(nil)
