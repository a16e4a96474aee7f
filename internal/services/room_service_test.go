package services

import (
	"context"
	"errors"
	"testing"

	"huntcall/internal/domain/call"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateRoomAbsorbsDuplicate returns the stored room when a racing insert already won.
func TestCreateRoomAbsorbsDuplicate(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a")
	ctx := context.Background()

	first, err := a.rooms.createRoom(ctx, call.Room{ID: "r1", Hunt: "h", Call: "c", RoutedServer: "server-a", CreatedBy: "u"})
	require.NoError(t, err)
	second, err := a.rooms.createRoom(ctx, call.Room{ID: "r2", Hunt: "h", Call: "c", RoutedServer: "server-b", CreatedBy: "v"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "server-a", second.RoutedServer)
}

// TestEnsureRoomKeepsExistingOwner never reroutes outside the garbage collector.
func TestEnsureRoomKeepsExistingOwner(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a")
	b := f.node("server-b")
	ctx := context.Background()

	room, err := a.rooms.EnsureRoom(ctx, "h", "c", a.id, "u")
	require.NoError(t, err)
	again, err := b.rooms.EnsureRoom(ctx, "h", "c", b.id, "v")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
	assert.Equal(t, a.id, again.RoutedServer)
}

// TestReassignLockedIsIdempotent reassigns once and skips on the second call.
func TestReassignLockedIsIdempotent(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a")
	b := f.node("server-b")
	ctx := context.Background()

	b.join(t, "owner", "call-1", "t1")
	a.join(t, "guest", "call-1", "t2")

	outcome, err := a.rooms.ReassignLocked(ctx, "call-1", []string{b.id}, a.id)
	require.NoError(t, err)
	assert.Equal(t, ReassignRerouted, outcome)

	room, err := f.store.Repositories().Rooms.GetByCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, a.id, room.RoutedServer)
	assert.Equal(t, "owner", room.CreatedBy)

	outcome, err = a.rooms.ReassignLocked(ctx, "call-1", []string{b.id}, a.id)
	require.NoError(t, err)
	assert.Equal(t, ReassignSkipped, outcome)

	outcome, err = a.rooms.ReassignLocked(ctx, "missing", []string{b.id}, a.id)
	require.NoError(t, err)
	assert.Equal(t, ReassignGone, outcome)
}

// TestReleaseRoomFailureKeepsRoom surfaces store errors.
func TestReleaseRoomFailureKeepsRoom(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a")
	ctx := context.Background()

	_, err := a.rooms.EnsureRoom(ctx, "h", "c", a.id, "u")
	require.NoError(t, err)

	boom := errors.New("boom")
	f.store.InjectError("rooms.Delete", boom)
	_, err = a.rooms.ReleaseRoomIfEmpty(ctx, "c")
	assert.ErrorIs(t, err, boom)

	released, err := a.rooms.ReleaseRoomIfEmpty(ctx, "c")
	require.NoError(t, err)
	assert.True(t, released)
	_, err = f.store.Repositories().Rooms.GetByCall(ctx, "c")
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)
}
