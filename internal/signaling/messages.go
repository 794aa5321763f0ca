package signaling

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire framing for every signaling message, inbound and
// outbound:
//
//	{"event": "<name>", "data": <payload>}
//
// Inbound payloads stay raw here; the relay engine decides how (and whether)
// to decode each event's data. Unknown fields are ignored so clients can
// evolve without breaking the relay.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, err
	}
	if env.Event == "" {
		return envelope{}, fmt.Errorf("envelope missing event name")
	}
	return env, nil
}

// outEnvelope mirrors envelope for outbound messages, with the payload still
// unmarshaled so callers can pass typed structs or raw JSON alike.
type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
