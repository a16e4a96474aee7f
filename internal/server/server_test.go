package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huntcall/config"
	"huntcall/internal/handler"
	"huntcall/internal/proxy"
	"huntcall/internal/redis"
	"huntcall/internal/repository/memory"
	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"
	"huntcall/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv   *Server
	auth  *services.AuthService
	peers *services.PeerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repos := memory.New().Repositories()
	registry := redis.NewRegistry(client, "server-a")
	_, err := registry.Register(context.Background())
	require.NoError(t, err)
	locker := redis.NewLocker(client, "server-a", redis.LockConfig{RetryDelay: 2 * time.Millisecond})

	rooms := services.NewRoomService(repos, locker, registry, nil, 30*time.Second, nil)
	negotiation := services.NewNegotiationService(repos, nil, "server-a", nil, nil)
	peers := services.NewPeerService(repos, rooms, negotiation, locker, proxy.NewClaimsAuthorizer(), nil,
		services.PeerConfig{ServerID: "server-a"}, nil, nil)
	debug := services.NewDebugService(repos, registry, nil, nil)
	auth := services.NewAuthService("test-secret", time.Hour)

	srv := New(&config.Config{AppPort: "0", AppMode: TestMode}, logger.NewNop())
	srv.SetupRoutes(&Handlers{
		Calls: handler.NewCallHandler(peers),
		Debug: handler.NewDebugHandler(debug),
	}, auth, Dependencies{Redis: client})

	return &fixture{srv: srv, auth: auth, peers: peers}
}

func (f *fixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T, user string, admin bool, hunts ...string) string {
	t.Helper()
	token, err := f.auth.IssueAccessToken(user, hunts, admin)
	require.NoError(t, err)
	return token
}

func (f *fixture) join(t *testing.T, user, hunt, callID, tab string) {
	t.Helper()
	ctx := services.WithIdentity(context.Background(), services.Identity{UserID: user, Hunts: []string{hunt}})
	_, err := f.peers.Join(ctx, services.JoinInput{UserID: user, Hunt: hunt, Call: callID, Tab: tab})
	require.NoError(t, err)
}

// TestPingAndHealth checks the unauthenticated endpoints.
func TestPingAndHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestCallEndpointsRequireMembership lists calls for members only.
func TestCallEndpointsRequireMembership(t *testing.T) {
	f := newFixture(t)
	f.join(t, "alice", "hunt-1", "call-1", "tab-1")

	rec := f.do(t, http.MethodGet, "/v1/hunts/hunt-1/calls", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/hunts/hunt-1/calls", f.token(t, "bob", false, "hunt-2"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/hunts/hunt-1/calls", f.token(t, "bob", false, "hunt-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var list httpdto.Response[struct {
		Calls []httpdto.CallSummary `json:"calls"`
		Total int                   `json:"total"`
	}]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Success)
	require.Len(t, list.Data.Calls, 1)
	assert.Equal(t, "call-1", list.Data.Calls[0].Call)

	rec = f.do(t, http.MethodGet, "/v1/hunts/hunt-1/calls/call-1", f.token(t, "bob", false, "hunt-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail httpdto.Response[httpdto.CallDetail]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.True(t, detail.Data.Active)
	require.Len(t, detail.Data.Participants, 1)
	assert.Equal(t, "alice", detail.Data.Participants[0].UserID)
}

// TestDebugDumpIsAdminOnly guards the full record dump.
func TestDebugDumpIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	f.join(t, "alice", "hunt-1", "call-1", "tab-1")

	rec := f.do(t, http.MethodGet, "/v1/admin/calls/debug", f.token(t, "alice", false, "hunt-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/admin/calls/debug", f.token(t, "root", true))
	require.Equal(t, http.StatusOK, rec.Code)
	var dump httpdto.Response[services.Dump]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dump))
	assert.Equal(t, "server-a", dump.Data.Server)
	assert.Len(t, dump.Data.Peers, 1)
	assert.Len(t, dump.Data.Rooms, 1)

	// No object store is configured.
	rec = f.do(t, http.MethodPost, "/v1/admin/calls/debug/archive", f.token(t, "root", true))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var failed httpdto.Response[any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Equal(t, "UNAVAILABLE", failed.Code)
}
