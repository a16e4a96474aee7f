package call

import "time"

// Room records which server currently owns a call's media router.
// At most one Room exists per call.
type Room struct {
	ID           string    `json:"id"`
	Hunt         string    `json:"hunt"`
	Call         string    `json:"call"`
	RoutedServer string    `json:"routed_server"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Router is the media routing endpoint instantiated by the Room's owner.
type Router struct {
	ID            string    `json:"id"`
	Call          string    `json:"call"`
	CreatedServer string    `json:"created_server"`
	CreatedAt     time.Time `json:"created_at"`
}

type PeerState string

const (
	PeerStateActive   PeerState = "active"
	PeerStateMuted    PeerState = "muted"
	PeerStateDeafened PeerState = "deafened"
)

func (s PeerState) Valid() bool {
	switch s {
	case PeerStateActive, PeerStateMuted, PeerStateDeafened:
		return true
	}
	return false
}

// StateOf collapses the two flags into a PeerState. Deafened wins over muted.
func StateOf(muted, deafened bool) PeerState {
	switch {
	case deafened:
		return PeerStateDeafened
	case muted:
		return PeerStateMuted
	default:
		return PeerStateActive
	}
}

// Peer is one participant's membership in a call from one browser tab.
type Peer struct {
	ID               string    `json:"id"`
	Hunt             string    `json:"hunt"`
	Call             string    `json:"call"`
	Tab              string    `json:"tab"`
	CreatedServer    string    `json:"created_server"`
	CreatedBy        string    `json:"created_by"`
	Muted            bool      `json:"muted"`
	Deafened         bool      `json:"deafened"`
	InitialPeerState PeerState `json:"initial_peer_state"`
	CreatedAt        time.Time `json:"created_at"`
}

// State returns the peer's current mute/deafen state.
func (p Peer) State() PeerState {
	return StateOf(p.Muted, p.Deafened)
}

// CallHistory tracks the last time anything happened in a call.
type CallHistory struct {
	Hunt         string    `json:"hunt"`
	Call         string    `json:"call"`
	LastActivity time.Time `json:"last_activity"`
}
