package push

import (
	"encoding/json"
	"time"
)

// Envelope is the broadcast message fanned out to subscribed sessions.
// Seq is assigned by the coordinator when Entity is set; callers leave it zero.
type Envelope struct {
	Entity         string            `json:"entity"`
	Action         string            `json:"action"`
	Payload        []json.RawMessage `json:"payload"`
	IDs            []int64           `json:"ids"`
	Seq            uint64            `json:"seq,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	ExcludeActorID string            `json:"excludeActorId,omitempty"`
}

// RateLimitResult is the outcome of a fixed-window rate limit check.
// ResetAt is unix milliseconds.
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

// welcomeFrame is sent once per session immediately after connect. The seq
// map lets a reconnecting client detect gaps against its last-seen numbers.
type welcomeFrame struct {
	Type string      `json:"type"`
	Data welcomeData `json:"data"`
}

type welcomeData struct {
	SessionID string            `json:"sessionId"`
	Seqs      map[string]uint64 `json:"seqs"`
}

// echoFrame wraps an unrecognized inbound client message for diagnostics.
type echoFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEchoFrame returns the serialized echo of an inbound client message.
func NewEchoFrame(data []byte) ([]byte, error) {
	return json.Marshal(echoFrame{Type: "echo", Data: data})
}
