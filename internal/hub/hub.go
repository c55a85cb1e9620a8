package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/ultrapreps/hypehub/internal/metrics"
)

const (
	commandChannelSize = 256
	commandTimeout     = 5 * time.Second
	ledgerTimeout      = 2 * time.Second
)

// HypeLedger is the external balance service consulted when a hype
// award is routed. The in-process fallback keeps a running total; a
// hardened deployment points this at the durable ledger service.
type HypeLedger interface {
	Award(ctx context.Context, fromUserID, targetUserID string, amount int) (total int, err error)
}

// Config holds the tunables of the hub.
type Config struct {
	MaxConnections int
	SendBufferSize int
	Backpressure   BackpressurePolicy
	StopTimeout    time.Duration
}

// Stats is a point-in-time snapshot of hub occupancy.
type Stats struct {
	Connections int
	Rooms       int
}

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	identity Identity
	conn     *websocket.Conn
	replyCh  chan registerReply
}

type registerReply struct {
	client *Client
	err    error
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type joinCmd struct {
	baseHubCmd
	id     uuid.UUID
	roomID string
}

type leaveCmd struct {
	baseHubCmd
	id     uuid.UUID
	roomID string
}

// delivery is one encoded frame plus its resolved audience.
type delivery struct {
	frameType string
	data      []byte
	scope     Scope
}

type deliverCmd struct {
	baseHubCmd
	sender     uuid.UUID
	deliveries []delivery
}

type statsCmd struct {
	baseHubCmd
	replyCh chan Stats
}

type membersCmd struct {
	baseHubCmd
	roomID  string
	replyCh chan []uuid.UUID
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the connection registry and the room index. A single
// goroutine drains the command channel, so every mutation and every
// fanout read happens in one total order; nothing else ever touches
// the maps.
type Hub struct {
	cmdCh  chan hubCmd
	clock  clockwork.Clock
	ledger HypeLedger
	cfg    Config

	clients map[uuid.UUID]*Client
	rooms   *roomIndex

	done chan struct{}
}

// New creates a hub and starts its coordinator goroutine.
func New(ledger HypeLedger, clock clockwork.Clock, cfg Config) *Hub {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 16
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = DropNewest
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	h := &Hub{
		cmdCh:   make(chan hubCmd, commandChannelSize),
		clock:   clock,
		ledger:  ledger,
		cfg:     cfg,
		clients: make(map[uuid.UUID]*Client),
		rooms:   newRoomIndex(),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// --- Public API ---

// Register admits a new connection with the given handshake identity.
// Fails with ErrCapacityExceeded when the registry is full, in which
// case the transport connection is already closed.
func (h *Hub) Register(identity Identity, conn *websocket.Conn) (*Client, error) {
	replyCh := make(chan registerReply, 1)
	if !h.submit(registerCmd{identity: identity, conn: conn, replyCh: replyCh}) {
		conn.Close()
		return nil, ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.client, reply.err
	case <-timer.Chan():
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a connection, purging its room memberships and
// notifying its former room-mates. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.submit(unregisterCmd{id: c.ID})
}

// HandleInbound validates one raw inbound frame from c and routes it.
// Rejections are reported back to c only; processing of later frames
// continues either way. Runs on the caller's goroutine; only command
// submission and the ledger call happen here.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, raw []byte) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		h.reject(c, "invalid_payload", err)
		return
	}
	metrics.EventsRoutedTotal.WithLabelValues(string(cmd.Kind)).Inc()

	switch cmd.Kind {
	case CmdJoinRoom:
		h.submit(joinCmd{id: c.ID, roomID: cmd.RoomID})

	case CmdLeaveRoom:
		h.submit(leaveCmd{id: c.ID, roomID: cmd.RoomID})

	case CmdSendMessage:
		h.routeChatMessage(c, cmd)

	case CmdSendHype:
		h.routeHype(ctx, c, cmd)

	case CmdSendReaction:
		activity := h.newActivity(c, ActivityReaction,
			fmt.Sprintf("%s reacted with %s", c.Identity.UserName, cmd.Reaction),
			map[string]string{"eventId": cmd.EventID, "reaction": cmd.Reaction})
		h.deliver(c.ID, FrameLiveActivity, activity, Scope{Room: reactionRoom(cmd.EventID)})

	case CmdUpdateStatus:
		activity := h.newActivity(c, ActivityStatus,
			fmt.Sprintf("%s is now %s", c.Identity.UserName, cmd.Status),
			map[string]string{"status": cmd.Status})
		h.deliver(c.ID, FrameLiveActivity, activity, Scope{ExcludeSender: true})
	}
}

// Stats returns current connection and room counts. Returns zero
// values if the hub is stopped or stuck.
func (h *Hub) Stats() Stats {
	replyCh := make(chan Stats, 1)
	if !h.submit(statsCmd{replyCh: replyCh}) {
		return Stats{}
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case stats := <-replyCh:
		return stats
	case <-timer.Chan():
		slog.Warn("Stats command timed out", "timeout", commandTimeout)
		return Stats{}
	}
}

// RoomMembers returns a snapshot of the member IDs of a room.
func (h *Hub) RoomMembers(roomID string) []uuid.UUID {
	replyCh := make(chan []uuid.UUID, 1)
	if !h.submit(membersCmd{roomID: roomID, replyCh: replyCh}) {
		return nil
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case members := <-replyCh:
		return members
	case <-timer.Chan():
		return nil
	}
}

// Stop drains every connection through the normal disconnect path and
// shuts the coordinator down. Blocks until done or the stop timeout.
func (h *Hub) Stop() {
	h.submit(stopCmd{})

	timer := h.clock.NewTimer(h.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", h.cfg.StopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
	}
}

// submit enqueues a command unless the coordinator has exited.
func (h *Hub) submit(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// --- Routing helpers (caller goroutine) ---

func (h *Hub) routeChatMessage(c *Client, cmd Command) {
	msg := ChatMessage{
		ID:        newEventID(),
		RoomID:    cmd.RoomID,
		UserID:    c.Identity.UserID,
		UserName:  c.Identity.UserName,
		Message:   cmd.Message,
		Timestamp: h.clock.Now(),
	}
	h.deliver(c.ID, FrameChatMessage, msg, Scope{Room: cmd.RoomID})
}

func (h *Hub) routeHype(ctx context.Context, c *Client, cmd Command) {
	ctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()

	total, err := h.ledger.Award(ctx, c.Identity.UserID, cmd.TargetUserID, cmd.Amount)
	if err != nil {
		slog.Warn("Hype award failed",
			"from_user", c.Identity.UserID,
			"target_user", cmd.TargetUserID,
			"error", err,
		)
		h.reject(c, "ledger_unavailable", fmt.Errorf("hype award not applied: %w", err))
		return
	}

	now := h.clock.Now()
	update := HypeUpdate{
		UserID:    cmd.TargetUserID,
		Amount:    cmd.Amount,
		TotalHype: total,
		Event:     "hype_awarded",
		FromUser:  c.Identity.UserName,
		Timestamp: now,
	}
	activity := h.newActivity(c, ActivityHype,
		fmt.Sprintf("%s sent %d hype", c.Identity.UserName, cmd.Amount),
		map[string]string{"targetUserId": cmd.TargetUserID})

	h.deliverAll(c.ID,
		delivery{frameType: FrameHypeUpdate, data: mustEncode(FrameHypeUpdate, update), scope: Scope{}},
		delivery{frameType: FrameLiveActivity, data: mustEncode(FrameLiveActivity, activity), scope: Scope{}},
	)
}

func (h *Hub) newActivity(c *Client, activityType, message string, metadata map[string]string) LiveActivity {
	return LiveActivity{
		ID:        newEventID(),
		Type:      activityType,
		Message:   message,
		UserID:    c.Identity.UserID,
		UserName:  c.Identity.UserName,
		Timestamp: h.clock.Now(),
		Metadata:  metadata,
	}
}

func (h *Hub) deliver(sender uuid.UUID, frameType string, payload any, scope Scope) {
	h.deliverAll(sender, delivery{frameType: frameType, data: mustEncode(frameType, payload), scope: scope})
}

func (h *Hub) deliverAll(sender uuid.UUID, deliveries ...delivery) {
	valid := deliveries[:0]
	for _, d := range deliveries {
		if d.data != nil {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		return
	}
	h.submit(deliverCmd{sender: sender, deliveries: valid})
}

// reject reports a per-event failure to the offending sender. Other
// participants never see it and the connection stays open.
func (h *Hub) reject(c *Client, code string, err error) {
	metrics.EventsRejectedTotal.WithLabelValues(code).Inc()
	slog.Debug("Inbound event rejected", "user_id", c.Identity.UserID, "code", code, "error", err)

	data, encErr := encodeFrame(FrameError, ErrorFrame{Code: code, Message: err.Error()})
	if encErr != nil {
		slog.Error("Failed to encode error frame", "error", encErr)
		return
	}
	c.writer.enqueue(data)
}

func mustEncode(frameType string, payload any) []byte {
	data, err := encodeFrame(frameType, payload)
	if err != nil {
		slog.Error("Failed to encode frame", "type", frameType, "error", err)
		return nil
	}
	return data
}

// --- Coordinator goroutine ---

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub panic")
			close(h.done)
		}
	}()

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.CommandChannelDepth.Set(float64(depth))
			if depth > commandChannelSize*4/5 {
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", commandChannelSize)
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case joinCmd:
				h.handleJoin(c)
			case leaveCmd:
				h.handleLeave(c)
			case deliverCmd:
				for _, d := range c.deliveries {
					h.fanout(c.sender, d)
				}
			case statsCmd:
				c.replyCh <- Stats{Connections: len(h.clients), Rooms: h.rooms.roomCount()}
			case membersCmd:
				c.replyCh <- h.rooms.membersOf(c.roomID)
			case stopCmd:
				h.handleStop()
				close(h.done)
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if h.cfg.MaxConnections > 0 && len(h.clients) >= h.cfg.MaxConnections {
		slog.Warn("Rejecting connection: registry at capacity", "max_connections", h.cfg.MaxConnections)
		c.conn.Close()
		c.replyCh <- registerReply{err: fmt.Errorf("%w: %d connections", ErrCapacityExceeded, h.cfg.MaxConnections)}
		return
	}

	client := newClient(c.identity, c.conn, h.clock, h.cfg.SendBufferSize, h.cfg.Backpressure)
	client.state = stateActive
	h.clients[client.ID] = client

	metrics.ActiveConnections.Set(float64(len(h.clients)))
	slog.Debug("Connection registered",
		"connection_id", client.ID.String(),
		"user_id", client.Identity.UserID,
		"school_id", client.Identity.SchoolID,
	)
	c.replyCh <- registerReply{client: client}
}

// handleUnregister runs the Active→Disconnecting→Closed path: purge
// every room membership and the registry record as one ordered
// operation, then stop the writer. Idempotent.
func (h *Hub) handleUnregister(id uuid.UUID) {
	client, ok := h.clients[id]
	if !ok || client.state != stateActive {
		return
	}
	client.state = stateDisconnecting

	left := h.rooms.leaveAll(id)
	delete(h.clients, id)
	for _, roomID := range left {
		h.notifyRoomLeft(client, roomID)
	}

	client.writer.stop()
	client.state = stateClosed

	metrics.ActiveConnections.Set(float64(len(h.clients)))
	metrics.ActiveRooms.Set(float64(h.rooms.roomCount()))
	slog.Debug("Connection unregistered", "connection_id", id.String(), "rooms_left", len(left))
}

func (h *Hub) handleJoin(c joinCmd) {
	client, ok := h.clients[c.id]
	if !ok || client.state != stateActive {
		return
	}
	if !h.rooms.join(c.roomID, c.id) {
		// Already a member; no second notification.
		return
	}
	metrics.ActiveRooms.Set(float64(h.rooms.roomCount()))

	activity := h.newActivity(client, ActivityRoomJoined,
		fmt.Sprintf("%s joined", client.Identity.UserName),
		map[string]string{"roomId": c.roomID})
	if data := mustEncode(FrameLiveActivity, activity); data != nil {
		h.fanout(c.id, delivery{
			frameType: FrameLiveActivity,
			data:      data,
			scope:     Scope{Room: c.roomID, ExcludeSender: true},
		})
	}
}

func (h *Hub) handleLeave(c leaveCmd) {
	client, ok := h.clients[c.id]
	if !ok || client.state != stateActive {
		return
	}
	if !h.rooms.leave(c.roomID, c.id) {
		return
	}
	metrics.ActiveRooms.Set(float64(h.rooms.roomCount()))
	h.notifyRoomLeft(client, c.roomID)
}

// notifyRoomLeft tells the remaining members of roomID that client is
// gone, symmetric with the join notification.
func (h *Hub) notifyRoomLeft(client *Client, roomID string) {
	activity := h.newActivity(client, ActivityRoomLeft,
		fmt.Sprintf("%s left", client.Identity.UserName),
		map[string]string{"roomId": roomID})
	if data := mustEncode(FrameLiveActivity, activity); data != nil {
		h.fanout(client.ID, delivery{
			frameType: FrameLiveActivity,
			data:      data,
			scope:     Scope{Room: roomID, ExcludeSender: true},
		})
	}
}

// handleStop drains every connection through Disconnecting→Closed.
// Peer notifications are skipped: everyone is going away.
func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "connections", len(h.clients), "rooms", h.rooms.roomCount())
	h.closeAllClients("server shutting down")
	slog.Info("Hub shutdown complete")
}

func (h *Hub) closeAllClients(reason string) {
	for id, client := range h.clients {
		client.state = stateDisconnecting
		h.rooms.leaveAll(id)
		delete(h.clients, id)
		client.writer.stopGraceful(reason)
		client.state = stateClosed
	}
	metrics.ActiveConnections.Set(0)
	metrics.ActiveRooms.Set(float64(h.rooms.roomCount()))
}
