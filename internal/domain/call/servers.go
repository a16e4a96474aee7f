package call

import "time"

// Server is one fleet member as seen through the heartbeat registry.
type Server struct {
	ID          string    `json:"id"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Dead reports whether the heartbeat is at least maxAge old at now.
func (s Server) Dead(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.HeartbeatAt) >= maxAge
}
