package commands

import (
	"context"
	"sync"
)

type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	proxies  *ProxyChain
}

func NewBus(proxies ...Proxy) *Bus {
	return &Bus{handlers: make(map[string]Handler), proxies: NewProxyChain(proxies...)}
}

func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	b.handlers[commandType] = handler
	b.mu.Unlock()
}

// Use appends proxies consulted before every handler.
func (b *Bus) Use(proxies ...Proxy) {
	b.mu.Lock()
	b.proxies = NewProxyChain(append(b.proxies.proxies, proxies...)...)
	b.mu.Unlock()
}

// Execute validates cmd, runs it through the proxy chain and dispatches it.
func (b *Bus) Execute(ctx context.Context, cmd Command) (Result, error) {
	b.mu.RLock()
	h, ok := b.handlers[cmd.CommandType()]
	proxies := b.proxies
	b.mu.RUnlock()
	if !ok {
		return Result{}, ErrHandlerNotFound
	}
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	if err := proxies.Authorize(ctx, cmd); err != nil {
		return Result{}, err
	}
	return h.Handle(ctx, cmd)
}

func (b *Bus) Registered(commandType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[commandType]
	return ok
}
