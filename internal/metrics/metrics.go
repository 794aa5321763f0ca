package metrics

import "sync"

// Counter names used across the relay. Keeping them here avoids typo'd
// free-form strings at call sites.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	Joins             = "joins"
	PeerJoinsNotified = "peer_joins_notified"
	SignalsRelayed    = "signals_relayed"
	ChatMessages      = "chat_messages"
	WhiteboardEvents  = "whiteboard_events"
	Pings             = "pings"
	UploadsSaved      = "uploads_saved"

	// Silent-drop reasons. The relay never surfaces these to clients, so the
	// counters are the only way to observe them.
	DropSignalMissingTarget = "drop_signal_missing_target"
	DropSignalNoRecipient   = "drop_signal_no_recipient"
	DropChatNoRoom          = "drop_chat_no_room"
	DropChatEmptyText       = "drop_chat_empty_text"
	DropWhiteboardNoRoom    = "drop_whiteboard_no_room"
	DropBadMessage          = "drop_bad_message"
	DropUnknownEvent        = "drop_unknown_event"
	DropRateLimited         = "drop_rate_limited"
	DropUploadOversized     = "drop_upload_oversized"
	DropUploadBadIdentity   = "drop_upload_bad_identity"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A deployment that wants a richer metrics backend can scrape these counters
// via PrometheusHandler; in-process they keep the silent-drop contract
// observable for tests.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
