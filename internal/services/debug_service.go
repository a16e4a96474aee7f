package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// Dump is every record of the call core at one point in time.
type Dump struct {
	Server      string              `json:"server"`
	GeneratedAt time.Time           `json:"generated_at"`
	Servers     []call.Server       `json:"servers"`
	Rooms       []call.Room         `json:"rooms"`
	Routers     []call.Router       `json:"routers"`
	Peers       []call.Peer         `json:"peers"`
	Groups      []negotiation.Group `json:"groups"`
}

type DebugService struct {
	repos    repository.Repositories
	registry ServerRegistry
	store    ObjectStore
	log      *logger.Logger
	now      func() time.Time
}

// NewDebugService builds the admin dump view. store may be nil, in which
// case Archive reports ErrServiceUnavailable.
func NewDebugService(repos repository.Repositories, registry ServerRegistry, store ObjectStore, log *logger.Logger) *DebugService {
	if log == nil {
		log = logger.NewNop()
	}
	return &DebugService{repos: repos, registry: registry, store: store, log: log.Named("debug"), now: time.Now}
}

func (s *DebugService) Dump(ctx context.Context) (Dump, error) {
	d := Dump{GeneratedAt: s.now().UTC()}
	var err error

	if s.registry != nil {
		d.Server = s.registry.ID()
		if d.Servers, err = s.registry.List(ctx); err != nil {
			return d, fmt.Errorf("list servers: %w", err)
		}
	}
	if d.Rooms, err = s.repos.Rooms.ListAll(ctx); err != nil {
		return d, fmt.Errorf("list rooms: %w", err)
	}
	if d.Routers, err = s.repos.Routers.ListAll(ctx); err != nil {
		return d, fmt.Errorf("list routers: %w", err)
	}
	if d.Peers, err = s.repos.Peers.ListAll(ctx); err != nil {
		return d, fmt.Errorf("list peers: %w", err)
	}

	requests, err := s.repos.Negotiation.ListTransportRequests(ctx)
	if err != nil {
		return d, fmt.Errorf("list transport requests: %w", err)
	}
	d.Groups = make([]negotiation.Group, 0, len(requests))
	for _, tr := range requests {
		g, err := s.repos.Negotiation.LoadGroup(ctx, tr.ID)
		if errors.Is(err, huntcall_errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return d, fmt.Errorf("load group %s: %w", tr.ID, err)
		}
		d.Groups = append(d.Groups, g)
	}
	return d, nil
}

// Archive uploads the current dump as JSON and returns its object key.
func (s *DebugService) Archive(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("debug archive: %w", huntcall_errors.ErrServiceUnavailable)
	}
	d, err := s.Dump(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode dump: %w", err)
	}

	key := fmt.Sprintf("debug/%s/%s.json", d.Server, d.GeneratedAt.Format("20060102T150405.000Z"))
	if err := s.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("upload dump: %w", err)
	}
	s.log.WithContext(ctx).Info("debug dump archived", zap.String("key", key), zap.Int("bytes", len(body)))
	return key, nil
}

// DownloadURL returns a temporary link to an archived dump, or an empty
// string when the store cannot sign links.
func (s *DebugService) DownloadURL(ctx context.Context, key string) (string, error) {
	presigner, ok := s.store.(Presigner)
	if !ok {
		return "", nil
	}
	url, err := presigner.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presign dump: %w", err)
	}
	return url, nil
}
