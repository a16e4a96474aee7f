package services

import (
	"context"
	"time"

	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// Heartbeater refreshes this server's registry entry. There is no
// deregistration: stopping simply lets the heartbeat go stale.
type Heartbeater struct {
	registry ServerRegistry
	log      *logger.Logger
	loop     *periodic
}

func NewHeartbeater(registry ServerRegistry, interval time.Duration, log *logger.Logger) *Heartbeater {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Heartbeater{registry: registry, log: log.Named("heartbeat")}
	h.loop = newPeriodic(interval, h.beat)
	return h
}

func (h *Heartbeater) Start(ctx context.Context) {
	h.loop.Start(ctx, nil)
}

func (h *Heartbeater) Stop() {
	h.loop.Stop()
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.registry.Heartbeat(ctx); err != nil && ctx.Err() == nil {
		h.log.Logger.Warn("heartbeat failed", zap.String("server", h.registry.ID()), zap.Error(err))
	}
}
