// Package relay implements the room/session message-relay engine: the
// join/leave lifecycle and the targeted-vs-broadcast dispatch rules for
// signaling, chat, presence and whiteboard traffic.
//
// The engine is deliberately best-effort: malformed or misdirected messages
// are dropped silently (and counted), never surfaced to any client, and no
// per-message failure can terminate a connection or leak into another room.
package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/zoomish/relay/internal/metrics"
	"github.com/zoomish/relay/internal/rooms"
)

// Config wires the engine's collaborators. Registry and Table default to
// fresh instances; tests typically inject their own to inspect state.
type Config struct {
	Registry  *rooms.Registry
	Table     *rooms.Table
	Transport Transport
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Now overrides the engine clock (wire timestamps are Now().UnixMilli()).
	Now func() time.Time
}

// Engine handles one inbound event per call. Handlers never block on I/O:
// all registry/table mutations are in-memory and complete synchronously, and
// delivery through the Transport is fire-and-forget.
type Engine struct {
	registry  *rooms.Registry
	table     *rooms.Table
	transport Transport
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

func New(cfg Config) *Engine {
	registry := cfg.Registry
	if registry == nil {
		registry = rooms.NewRegistry()
	}
	table := cfg.Table
	if table == nil {
		table = rooms.NewTable()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		registry:  registry,
		table:     table,
		transport: cfg.Transport,
		metrics:   cfg.Metrics,
		log:       log,
		now:       now,
	}
}

func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

// Connect registers a new connection. No broadcast happens until it joins a
// room.
func (e *Engine) Connect(id string) {
	e.registry.Register(id)
	e.metrics.Inc(metrics.ConnectionsOpened)
	e.log.Debug("connection opened", "conn_id", id)
}

// Join places the connection in a room, acks it privately with the
// prior-member peer list, and notifies the rest of the room.
//
// The ack is sent before the peer-join broadcast so the joiner always learns
// its own id first.
func (e *Engine) Join(id string, req JoinRequest) {
	if req.RoomID == "" {
		e.metrics.Inc(metrics.DropBadMessage)
		return
	}

	e.registry.SetName(id, req.Name)
	e.registry.SetRoom(id, req.RoomID)
	peers := e.table.Join(req.RoomID, id)
	e.metrics.Inc(metrics.Joins)

	e.transport.Send(id, Event{Name: EventJoined, Data: Joined{SelfID: id, Peers: peers}})

	notice := PeerJoin{Type: "peer-join", From: id, Name: e.registry.ResolveName(id)}
	for _, member := range e.othersInRoom(req.RoomID, id) {
		if e.transport.Send(member, Event{Name: EventSignal, Data: notice}) {
			e.metrics.Inc(metrics.PeerJoinsNotified)
		}
	}

	e.log.Debug("joined room", "conn_id", id, "room_id", req.RoomID, "prior_members", len(peers))
}

// Signal relays a peer-addressed payload to the connection named by its "to"
// field, attaching "from". Signals are not room-scoped: any live connection
// is addressable. A missing target field or a vanished recipient drops the
// message silently.
func (e *Engine) Signal(id string, payload json.RawMessage) {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil || msg == nil {
		e.metrics.Inc(metrics.DropBadMessage)
		return
	}

	to, _ := msg["to"].(string)
	if to == "" {
		e.metrics.Inc(metrics.DropSignalMissingTarget)
		return
	}

	msg["from"] = id
	if !e.transport.Send(to, Event{Name: EventSignal, Data: msg}) {
		e.metrics.Inc(metrics.DropSignalNoRecipient)
		return
	}
	e.metrics.Inc(metrics.SignalsRelayed)
}

// Chat broadcasts a text message to the sender's room, sender included, with
// "from" resolved to the sender's display name. No room or no text means a
// silent drop.
func (e *Engine) Chat(id string, msg ChatMessage) {
	roomID, ok := e.registry.Room(id)
	if !ok {
		e.metrics.Inc(metrics.DropChatNoRoom)
		return
	}
	if msg.Text == "" {
		e.metrics.Inc(metrics.DropChatEmptyText)
		return
	}

	at := msg.At
	if at == 0 {
		at = e.nowMillis()
	}
	out := Event{Name: EventChat, Data: ChatBroadcast{
		From: e.registry.ResolveName(id),
		Text: msg.Text,
		At:   at,
	}}
	for _, member := range e.table.Members(roomID) {
		e.transport.Send(member, out)
	}
	e.metrics.Inc(metrics.ChatMessages)
}

// Ping echoes a latency probe straight back to the sender: the relay's
// current time plus the probe payload, byte for byte.
func (e *Engine) Ping(id string, t0 json.RawMessage) {
	if len(t0) == 0 {
		t0 = json.RawMessage("null")
	}
	e.transport.Send(id, Event{Name: EventPong, Data: Pong{T: e.nowMillis(), T0: t0}})
	e.metrics.Inc(metrics.Pings)
}

// Whiteboard relays an opaque payload verbatim to every other member of the
// sender's room. Senders outside any room are dropped silently.
func (e *Engine) Whiteboard(id string, payload json.RawMessage) {
	roomID, ok := e.registry.Room(id)
	if !ok {
		e.metrics.Inc(metrics.DropWhiteboardNoRoom)
		return
	}

	out := Event{Name: EventWhiteboard, Data: payload}
	for _, member := range e.othersInRoom(roomID, id) {
		e.transport.Send(member, out)
	}
	e.metrics.Inc(metrics.WhiteboardEvents)
}

// Disconnect removes the connection from its room (if any), tells the
// remaining members, and always clears the registry entry. The room is
// deleted when it empties. Disconnect is the connection's only terminating
// event and runs unconditionally.
func (e *Engine) Disconnect(id string) {
	if roomID, ok := e.registry.Room(id); ok {
		e.table.Leave(roomID, id)
		out := Event{Name: EventLeft, Data: Left{PeerID: id}}
		for _, member := range e.table.Members(roomID) {
			e.transport.Send(member, out)
		}
		e.log.Debug("left room", "conn_id", id, "room_id", roomID)
	}
	e.registry.Remove(id)
	e.metrics.Inc(metrics.ConnectionsClosed)
}

func (e *Engine) othersInRoom(roomID, selfID string) []string {
	return lo.Without(e.table.Members(roomID), selfID)
}
