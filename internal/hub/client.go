package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/ultrapreps/hypehub/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// connState tracks the per-connection lifecycle. Transitions happen
// only on the hub goroutine and never skip a state:
// Connecting → Active → Disconnecting → Closed.
type connState int

const (
	stateConnecting connState = iota
	stateActive
	stateDisconnecting
	stateClosed
)

// BackpressurePolicy decides what happens when a recipient's outbound
// channel is full at delivery time.
type BackpressurePolicy string

const (
	// DropNewest drops the message being delivered.
	DropNewest BackpressurePolicy = "drop_newest"
	// DropOldest evicts the recipient's oldest queued message to make
	// room for the new one.
	DropOldest BackpressurePolicy = "drop_oldest"
)

// Client is one live connection: its identifier, the identity
// attributes captured at handshake time, and the outbound writer. The
// record is created on connect, destroyed on disconnect, and never
// reused across sessions. Identity is immutable; state is owned by the
// hub goroutine.
type Client struct {
	ID       uuid.UUID
	Identity Identity

	writer *clientWriter
	state  connState
}

func newClient(identity Identity, conn *websocket.Conn, clock clockwork.Clock, bufferSize int, policy BackpressurePolicy) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		writer:   newClientWriter(conn, clock, bufferSize, policy),
	}
}

// clientWriter owns all writes to one websocket connection. Outbound
// frames go through a bounded channel drained by a dedicated goroutine
// that also drives ping keepalives and write deadlines.
type clientWriter struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	policy   BackpressurePolicy
	sendCh   chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock, bufferSize int, policy BackpressurePolicy) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		clock:  clock,
		policy: policy,
		sendCh: make(chan []byte, bufferSize),
		doneCh: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue offers a frame to the writer without ever blocking the
// caller. When the channel is full the configured backpressure policy
// applies; the return value reports whether the frame was accepted.
func (cw *clientWriter) enqueue(data []byte) bool {
	select {
	case cw.sendCh <- data:
		return true
	default:
	}

	if cw.policy == DropOldest {
		select {
		case <-cw.sendCh:
			metrics.MessagesDroppedTotal.WithLabelValues(string(DropOldest)).Inc()
		default:
		}
		select {
		case cw.sendCh <- data:
			return true
		default:
		}
	}

	metrics.MessagesDroppedTotal.WithLabelValues(string(DropNewest)).Inc()
	return false
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.MessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.PingFailuresTotal.Inc()
				return
			}
		case <-cw.doneCh:
			return
		}
	}
}

// stop tears the writer down without a close frame. Safe to call more
// than once and from multiple goroutines.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with a reason before closing. The
// run goroutine must exit first so the close frame is not written
// concurrently with a pending message.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.conn.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
