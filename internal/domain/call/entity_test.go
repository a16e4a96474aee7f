package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestStateOf verifies deafened takes precedence over muted.
func TestStateOf(t *testing.T) {
	assert.Equal(t, PeerStateActive, StateOf(false, false))
	assert.Equal(t, PeerStateMuted, StateOf(true, false))
	assert.Equal(t, PeerStateDeafened, StateOf(true, true))
	assert.Equal(t, PeerStateDeafened, StateOf(false, true))
	assert.Equal(t, PeerStateMuted, Peer{Muted: true}.State())
}

// TestPeerStateValid rejects unknown states.
func TestPeerStateValid(t *testing.T) {
	assert.True(t, PeerStateMuted.Valid())
	assert.False(t, PeerState("loud").Valid())
}

// TestServerDead checks the staleness threshold.
func TestServerDead(t *testing.T) {
	now := time.Now()
	s := Server{ID: "a", HeartbeatAt: now.Add(-time.Minute)}
	assert.True(t, s.Dead(now, 30*time.Second))
	assert.False(t, s.Dead(now, 2*time.Minute))
}
