package memory

import (
	"context"
	"time"

	"huntcall/internal/domain/call"
	huntcall_errors "huntcall/pkg/errors"
)

type rooms struct{ s *Store }

func roomCreated(r call.Room) time.Time { return r.CreatedAt }
func roomID(r call.Room) string         { return r.ID }

func (r *rooms) Create(_ context.Context, room *call.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("rooms.Create"); err != nil {
		return err
	}
	if _, ok := r.s.rooms[room.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.rooms {
		if existing.Call == room.Call {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&room.CreatedAt)
	r.s.rooms[room.ID] = *room
	return nil
}

func (r *rooms) GetByCall(_ context.Context, callID string) (call.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("rooms.GetByCall"); err != nil {
		return call.Room{}, err
	}
	for _, room := range r.s.rooms {
		if room.Call == callID {
			return room, nil
		}
	}
	return call.Room{}, huntcall_errors.ErrNotFound
}

func (r *rooms) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("rooms.Delete"); err != nil {
		return false, err
	}
	_, ok := r.s.rooms[id]
	delete(r.s.rooms, id)
	return ok, nil
}

func (r *rooms) DeleteIfRoutedTo(_ context.Context, id string, servers []string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("rooms.DeleteIfRoutedTo"); err != nil {
		return false, err
	}
	room, ok := r.s.rooms[id]
	if !ok || !contains(servers, room.RoutedServer) {
		return false, nil
	}
	delete(r.s.rooms, id)
	return true, nil
}

func (r *rooms) ListRoutedTo(_ context.Context, servers []string) ([]call.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("rooms.ListRoutedTo"); err != nil {
		return nil, err
	}
	all := sortedValues(r.s.rooms, roomCreated, roomID)
	return filter(all, func(room call.Room) bool { return contains(servers, room.RoutedServer) }), nil
}

func (r *rooms) ListAll(_ context.Context) ([]call.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedValues(r.s.rooms, roomCreated, roomID), nil
}

type routers struct{ s *Store }

func routerCreated(r call.Router) time.Time { return r.CreatedAt }
func routerID(r call.Router) string         { return r.ID }

func (r *routers) Create(_ context.Context, router *call.Router) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("routers.Create"); err != nil {
		return err
	}
	if _, ok := r.s.routers[router.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.routers {
		if existing.Call == router.Call {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&router.CreatedAt)
	r.s.routers[router.ID] = *router
	return nil
}

func (r *routers) GetByCall(_ context.Context, callID string) (call.Router, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, router := range r.s.routers {
		if router.Call == callID {
			return router, nil
		}
	}
	return call.Router{}, huntcall_errors.ErrNotFound
}

func (r *routers) ListByServer(_ context.Context, serverID string) ([]call.Router, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.routers, routerCreated, routerID)
	return filter(all, func(router call.Router) bool { return router.CreatedServer == serverID }), nil
}

func (r *routers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.routers, id)
	return nil
}

func (r *routers) DeleteByCall(_ context.Context, callID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("routers.DeleteByCall"); err != nil {
		return err
	}
	for id, router := range r.s.routers {
		if router.Call == callID {
			delete(r.s.routers, id)
		}
	}
	return nil
}

func (r *routers) DeleteByServers(_ context.Context, servers []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("routers.DeleteByServers"); err != nil {
		return 0, err
	}
	var n int64
	for id, router := range r.s.routers {
		if contains(servers, router.CreatedServer) {
			delete(r.s.routers, id)
			n++
		}
	}
	return n, nil
}

func (r *routers) ListAll(_ context.Context) ([]call.Router, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedValues(r.s.routers, routerCreated, routerID), nil
}

type peers struct{ s *Store }

func peerCreated(p call.Peer) time.Time { return p.CreatedAt }
func peerID(p call.Peer) string         { return p.ID }

func (r *peers) Create(_ context.Context, p *call.Peer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("peers.Create"); err != nil {
		return err
	}
	if _, ok := r.s.peers[p.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	r.s.stamp(&p.CreatedAt)
	r.s.peers[p.ID] = *p
	return nil
}

func (r *peers) GetByID(_ context.Context, id string) (call.Peer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.peers[id]
	if !ok {
		return call.Peer{}, huntcall_errors.ErrNotFound
	}
	return p, nil
}

func (r *peers) ListByCall(_ context.Context, callID string) ([]call.Peer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("peers.ListByCall"); err != nil {
		return nil, err
	}
	all := sortedValues(r.s.peers, peerCreated, peerID)
	return filter(all, func(p call.Peer) bool { return p.Call == callID }), nil
}

func (r *peers) ListByTab(_ context.Context, hunt, callID, tab string) ([]call.Peer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.peers, peerCreated, peerID)
	return filter(all, func(p call.Peer) bool {
		return p.Hunt == hunt && p.Call == callID && p.Tab == tab
	}), nil
}

func (r *peers) CountByCall(_ context.Context, callID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, p := range r.s.peers {
		if p.Call == callID {
			n++
		}
	}
	return n, nil
}

func (r *peers) UpdateState(_ context.Context, id string, muted, deafened bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.peers[id]
	if !ok {
		return huntcall_errors.ErrNotFound
	}
	p.Muted, p.Deafened = muted, deafened
	r.s.peers[id] = p
	return nil
}

func (r *peers) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("peers.Delete"); err != nil {
		return false, err
	}
	_, ok := r.s.peers[id]
	delete(r.s.peers, id)
	return ok, nil
}

func (r *peers) DeleteByServers(_ context.Context, servers []string) ([]call.Peer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("peers.DeleteByServers"); err != nil {
		return nil, err
	}
	all := sortedValues(r.s.peers, peerCreated, peerID)
	removed := filter(all, func(p call.Peer) bool { return contains(servers, p.CreatedServer) })
	for _, p := range removed {
		delete(r.s.peers, p.ID)
	}
	return removed, nil
}

func (r *peers) ListAll(_ context.Context) ([]call.Peer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedValues(r.s.peers, peerCreated, peerID), nil
}

type histories struct{ s *Store }

func (r *histories) Touch(_ context.Context, hunt, callID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.histories[callID] = call.CallHistory{Hunt: hunt, Call: callID, LastActivity: r.s.now()}
	return nil
}

func (r *histories) Get(_ context.Context, callID string) (call.CallHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.histories[callID]
	if !ok {
		return call.CallHistory{}, huntcall_errors.ErrNotFound
	}
	return h, nil
}

func (r *histories) ListByHunt(_ context.Context, hunt string) ([]call.CallHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.histories,
		func(h call.CallHistory) time.Time { return h.LastActivity },
		func(h call.CallHistory) string { return h.Call })
	out := filter(all, func(h call.CallHistory) bool { return h.Hunt == hunt })
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
