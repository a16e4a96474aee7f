package httpdto

import (
	"time"

	"huntcall/internal/domain/call"
)

// CallSummary is one entry of GET /v1/hunts/:hunt/calls
type CallSummary struct {
	Hunt         string `json:"hunt"`
	Call         string `json:"call"`
	LastActivity string `json:"last_activity"`
}

func NewCallSummary(h call.CallHistory) CallSummary {
	return CallSummary{
		Hunt:         h.Hunt,
		Call:         h.Call,
		LastActivity: h.LastActivity.UTC().Format(time.RFC3339),
	}
}

// CallParticipant is a peer as shown to other hunt members. Server
// placement is left out; the admin debug dump has it.
type CallParticipant struct {
	PeerID   string `json:"peer_id"`
	UserID   string `json:"user_id"`
	Tab      string `json:"tab"`
	Muted    bool   `json:"muted"`
	Deafened bool   `json:"deafened"`
	JoinedAt string `json:"joined_at"`
}

func NewCallParticipant(p call.Peer) CallParticipant {
	return CallParticipant{
		PeerID:   p.ID,
		UserID:   p.CreatedBy,
		Tab:      p.Tab,
		Muted:    p.Muted,
		Deafened: p.Deafened,
		JoinedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CallDetail is returned by GET /v1/hunts/:hunt/calls/:call
type CallDetail struct {
	Hunt         string            `json:"hunt"`
	Call         string            `json:"call"`
	Active       bool              `json:"active"`
	Participants []CallParticipant `json:"participants"`
	LastActivity string            `json:"last_activity,omitempty"`
}

// ArchiveResponse is returned after uploading a debug dump
type ArchiveResponse struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}
