package media

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Engine = (*PionEngine)(nil)

func newTestEngine(t *testing.T) *PionEngine {
	t.Helper()
	e, err := NewPionEngine(PionConfig{GatherTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// TestPionRouterLifecycle creates and closes routers idempotently.
func TestPionRouterLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.CreateRouter(ctx, "b"))
	require.NoError(t, e.CreateRouter(ctx, "a"))
	require.NoError(t, e.CreateRouter(ctx, "a"))
	assert.Equal(t, []string{"a", "b"}, e.RouterIDs())

	require.NoError(t, e.CloseRouter("a"))
	assert.ErrorIs(t, e.CloseRouter("a"), ErrRouterNotFound)
	assert.Equal(t, []string{"b"}, e.RouterIDs())
}

// TestPionTransportRequiresRouter rejects transports on unknown routers.
func TestPionTransportRequiresRouter(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateTransport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRouterNotFound)
}

// TestPionProduceBeforeConnect reports the transport as not connected.
func TestPionProduceBeforeConnect(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateRouter(ctx, "r"))

	info, err := e.CreateTransport(ctx, "r")
	if err != nil {
		t.Skipf("ice gathering unavailable: %v", err)
	}

	var ice webrtc.ICEParameters
	require.NoError(t, json.Unmarshal([]byte(info.ICEParameters), &ice))
	assert.NotEmpty(t, ice.UsernameFragment)
	var dtls webrtc.DTLSParameters
	require.NoError(t, json.Unmarshal([]byte(info.DTLSParameters), &dtls))
	assert.NotEmpty(t, dtls.Fingerprints)

	params := `{"mimeType":"audio/opus","clockRate":48000,"channels":2,"payloadType":111,"ssrc":1234}`
	_, err = e.Produce(ctx, info.ID, "audio", params)
	assert.ErrorIs(t, err, ErrTransportNotConnected)

	require.NoError(t, e.CloseRouter("r"))
	assert.Empty(t, e.TransportIDs())
}

// TestProduceParametersValidation rejects incomplete stream descriptions.
func TestProduceParametersValidation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Produce(context.Background(), "t", "audio", `{"mimeType":"audio/opus"}`)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = e.Produce(context.Background(), "t", "audio", `not json`)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = e.Produce(context.Background(), "t", "screen", `{"mimeType":"audio/opus","clockRate":48000,"ssrc":1}`)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = e.Produce(context.Background(), "t", "audio", `{"mimeType":"audio/opus","clockRate":48000,"ssrc":1}`)
	assert.ErrorIs(t, err, ErrTransportNotFound)
}
