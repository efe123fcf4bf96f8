package decisionlog

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Event records a single decision for the audit trail. Context holds the
// request context that was evaluated, Error the evaluation failure if any.
type Event struct {
	Timestamp  time.Time   `json:"timestamp"`
	EventID    string      `json:"event_id"`
	RequestID  string      `json:"request_id,omitempty"`
	Policy     string      `json:"policy,omitempty"`
	Verdict    string      `json:"verdict"`
	DurationUs int64       `json:"duration_us"`
	Context    interface{} `json:"context,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func generateEventID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "evt-" + hex.EncodeToString(b)
}
