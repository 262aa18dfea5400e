package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// InMemoryBus fans deliveries out to subscribers through a bounded worker
// pool. Handlers for different keys run concurrently; the bus itself keeps
// no per-key state.
type InMemoryBus struct {
	logger *slog.Logger
	pool   *ants.Pool

	mu       sync.RWMutex
	handlers []Handler
	closed   bool

	wg sync.WaitGroup
}

// Option configures an InMemoryBus.
type Option func(*busConfig)

type busConfig struct {
	workers int
}

// WithWorkers sets the dispatch pool size. Default is 8.
func WithWorkers(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewInMemoryBus creates a bus backed by an ants worker pool.
func NewInMemoryBus(logger *slog.Logger, opts ...Option) (*InMemoryBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := busConfig{workers: 8}
	for _, o := range opts {
		o(&cfg)
	}
	pool, err := ants.NewPool(cfg.workers)
	if err != nil {
		return nil, err
	}
	return &InMemoryBus{logger: logger, pool: pool}, nil
}

// Subscribe registers a handler for every subsequent delivery.
func (b *InMemoryBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish dispatches the event to every subscriber asynchronously. Handler
// errors are logged, not propagated: a failed handler has already routed the
// failure (dead letter or ledger), so the bus has nothing left to do.
func (b *InMemoryBus) Publish(ctx context.Context, ev ObjectCreated) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Warn("bus.publish.after_shutdown", "key", ev.Key)
		return nil
	}
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		err := b.pool.Submit(func() {
			defer b.wg.Done()
			if err := h(context.WithoutCancel(ctx), ev); err != nil {
				b.logger.Error("bus.handler.failed", "key", ev.Key, "error", err)
			}
		})
		if err != nil {
			b.wg.Done()
			return err
		}
	}
	return nil
}

// Shutdown stops accepting deliveries and waits for in-flight handlers.
func (b *InMemoryBus) Shutdown(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); b.wg.Wait() }()

	select {
	case <-ctx.Done():
		b.logger.Warn("bus.shutdown.interrupted")
	case <-done:
		b.logger.Info("bus.shutdown.drained")
	}
	b.pool.Release()
}
