package relay

import "encoding/json"

// Event names as they appear on the wire. Inbound and outbound names overlap
// on purpose: "signal", "chat" and "whiteboard" are relayed back out under
// the name they arrived with.
const (
	EventJoin       = "join"
	EventSignal     = "signal"
	EventChat       = "chat"
	EventPing       = "ping-time"
	EventWhiteboard = "whiteboard"

	EventJoined = "joined"
	EventPong   = "pong-time"
	EventLeft   = "left"
)

// Event is a single outbound message: a named event plus a JSON-marshalable
// payload. The transport owns the envelope encoding.
type Event struct {
	Name string
	Data any
}

// Transport delivers events to live connections. Delivery is fire-and-forget:
// Send reports whether a recipient existed at dispatch time, nothing more.
// The engine discards the result on broadcast paths but keeps it observable
// per delivery so the best-effort contract stays testable.
type Transport interface {
	Send(connID string, evt Event) bool
}

// JoinRequest is the inbound "join" payload.
type JoinRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// Joined acknowledges a join privately to the joining connection. Peers lists
// the members present strictly before the join; it never contains SelfID.
type Joined struct {
	SelfID string   `json:"selfId"`
	Peers  []string `json:"peers"`
}

// PeerJoin is broadcast to the other room members as a "signal" event when a
// connection joins.
type PeerJoin struct {
	Type string `json:"type"`
	From string `json:"from"`
	Name string `json:"name"`
}

// ChatMessage is the inbound "chat" payload. At is milliseconds since the
// Unix epoch; zero means "relay assigns the current time".
type ChatMessage struct {
	Text string `json:"text"`
	At   int64  `json:"at,omitempty"`
}

// ChatBroadcast is the room-wide "chat" event. From carries the sender's
// display name, not its connection id.
type ChatBroadcast struct {
	From string `json:"from"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// Pong answers a "ping-time" probe. T is the relay's current time in
// milliseconds; T0 echoes the probe's payload verbatim.
type Pong struct {
	T  int64           `json:"t"`
	T0 json.RawMessage `json:"t0"`
}

// Left is broadcast to the remaining room members on disconnect.
type Left struct {
	PeerID string `json:"peerId"`
}
