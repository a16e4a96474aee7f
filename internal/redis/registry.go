package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"huntcall/internal/domain/call"

	goredis "github.com/redis/go-redis/v9"
)

// Sorted set of server ids scored by last heartbeat in unix milliseconds.
const serverHeartbeatKey = "servers:heartbeat"

// Registry tracks fleet liveness. A server is dead purely by heartbeat age;
// there is no deregistration on shutdown.
type Registry struct {
	client *goredis.Client
	id     string
	now    func() time.Time
}

func NewRegistry(client *goredis.Client, serverID string) *Registry {
	return &Registry{client: client, id: serverID, now: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Registry) ID() string {
	return r.id
}

// Register writes the first heartbeat and returns this server's id.
func (r *Registry) Register(ctx context.Context) (string, error) {
	if err := r.Heartbeat(ctx); err != nil {
		return "", err
	}
	return r.id, nil
}

func (r *Registry) Heartbeat(ctx context.Context) error {
	return r.client.ZAdd(ctx, serverHeartbeatKey, goredis.Z{
		Score:  float64(r.now().UnixMilli()),
		Member: r.id,
	}).Err()
}

// ListDeadServers returns servers whose heartbeat is at least threshold old.
func (r *Registry) ListDeadServers(ctx context.Context, threshold time.Duration) ([]string, error) {
	max := r.now().Add(-threshold).UnixMilli()
	return r.client.ZRangeByScore(ctx, serverHeartbeatKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(max, 10),
	}).Result()
}

// IsServerAlive reports whether id heartbeated within threshold. Unknown ids are dead.
func (r *Registry) IsServerAlive(ctx context.Context, id string, threshold time.Duration) (bool, error) {
	score, err := r.client.ZScore(ctx, serverHeartbeatKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	last := time.UnixMilli(int64(score))
	return r.now().Sub(last) < threshold, nil
}

// Forget drops servers from the registry once observers finished cleaning up after them.
func (r *Registry) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return r.client.ZRem(ctx, serverHeartbeatKey, members...).Err()
}

func (r *Registry) List(ctx context.Context) ([]call.Server, error) {
	entries, err := r.client.ZRangeWithScores(ctx, serverHeartbeatKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	servers := make([]call.Server, 0, len(entries))
	for _, z := range entries {
		id, _ := z.Member.(string)
		servers = append(servers, call.Server{ID: id, HeartbeatAt: time.UnixMilli(int64(z.Score))})
	}
	return servers, nil
}
