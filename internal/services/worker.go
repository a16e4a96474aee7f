package services

import (
	"context"
	"sync"
	"time"
)

// periodic runs fn on every tick and on every wake-up until stopped.
type periodic struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func newPeriodic(interval time.Duration, fn func(ctx context.Context)) *periodic {
	if interval <= 0 {
		interval = time.Second
	}
	return &periodic{interval: interval, fn: fn}
}

// Start begins the loop. wake may be nil.
func (p *periodic) Start(ctx context.Context, wake <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.wg.Add(1)
	go p.run(ctx, wake)
}

// Stop gracefully shuts down and waits for the current pass to finish.
func (p *periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *periodic) run(ctx context.Context, wake <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		p.fn(ctx)
	}
}
