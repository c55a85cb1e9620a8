package hub

import (
	"github.com/google/uuid"

	"github.com/ultrapreps/hypehub/internal/metrics"
)

// fanout delivers one encoded frame to the audience its scope selects.
// Runs on the hub goroutine, so the room snapshot it reads can never
// interleave with a mutation. Delivery per recipient is a non-blocking
// enqueue; a full buffer invokes the writer's backpressure policy
// instead of stalling the rest of the audience. A scope resolving to
// zero recipients is a no-op, not an error.
func (h *Hub) fanout(sender uuid.UUID, d delivery) {
	start := h.clock.Now()

	if d.scope.Room != "" {
		for _, id := range h.rooms.membersOf(d.scope.Room) {
			if d.scope.ExcludeSender && id == sender {
				continue
			}
			h.enqueueTo(id, d)
		}
	} else {
		for id := range h.clients {
			if d.scope.ExcludeSender && id == sender {
				continue
			}
			h.enqueueTo(id, d)
		}
	}

	metrics.FanoutDuration.Observe(h.clock.Since(start).Seconds())
}

func (h *Hub) enqueueTo(id uuid.UUID, d delivery) {
	client, ok := h.clients[id]
	if !ok || client.state != stateActive {
		return
	}
	if client.writer.enqueue(d.data) {
		metrics.DeliveriesTotal.WithLabelValues(d.frameType).Inc()
	}
}
