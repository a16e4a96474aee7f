package events

import "time"

// Envelope is the pub/sub payload. Receivers only need the channel name to
// wake watchers; the envelope is kept for logging and debugging.
type Envelope struct {
	EventType  string    `json:"event_type"`
	Call       string    `json:"call,omitempty"`
	Server     string    `json:"server,omitempty"`
	Origin     string    `json:"origin"`
	OccurredAt time.Time `json:"occurred_at"`
}
