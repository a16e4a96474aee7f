package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestGroupReady is true only once both directions are acked.
func TestGroupReady(t *testing.T) {
	g := Group{
		Request: TransportRequest{ID: "tr"},
		Transports: []Transport{
			{ID: "s", Direction: DirectionSend},
			{ID: "r", Direction: DirectionRecv},
		},
	}
	assert.False(t, g.Ready())

	g.ConnectAcks = append(g.ConnectAcks, ConnectAck{Transport: "s"})
	assert.False(t, g.Ready())

	g.ConnectAcks = append(g.ConnectAcks, ConnectAck{Transport: "r"})
	assert.True(t, g.Ready())
}

// TestGroupLookups covers the correlation helpers.
func TestGroupLookups(t *testing.T) {
	g := Group{
		ProducerServers: []ProducerServer{{ID: "ps", ProducerClient: "pc"}},
		Consumers:       []Consumer{{ID: "c", Transport: "r", ProducerServer: "ps2"}},
		ConsumerAcks:    []ConsumerAck{{ID: "a", Consumer: "c"}},
	}
	ps, ok := g.ProducerServerFor("pc")
	assert.True(t, ok)
	assert.Equal(t, "ps", ps.ID)

	_, ok = g.ConsumerFor("r", "ps2")
	assert.True(t, ok)
	_, ok = g.ConsumerFor("r", "ps")
	assert.False(t, ok)

	ack, ok := g.AckFor("c")
	assert.True(t, ok)
	assert.Equal(t, "a", ack.ID)

	assert.False(t, Direction("both").Valid())
	assert.True(t, KindAudio.Valid())
}
