package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
)

// ErrPoolExhausted is returned when no browser handle becomes available
// within the acquire timeout, or when instance creation fails.
var ErrPoolExhausted = errors.New("browser pool exhausted")

// ErrPoolClosed is returned by Acquire after the pool has been shut down.
var ErrPoolClosed = errors.New("browser pool closed")

// Instance is one rendering engine. Implementations must be safe to use
// from the single goroutine holding the lease.
type Instance interface {
	// Render navigates to pageURL and returns the final DOM snapshot.
	Render(ctx context.Context, pageURL string) (*model.FetchResult, error)

	// Close tears the instance down. It is called at most once.
	Close() error
}

// Factory creates a fresh Instance. Called lazily: the first acquire of
// each pool slot, and again after a recycle empties the slot.
type Factory func(ctx context.Context) (Instance, error)

// Handle is a leased browser instance. The holder owns it exclusively for
// the lease duration and must return it through Pool.Release or Pool.Retire
// on every exit path.
type Handle struct {
	id       string
	instance Instance
	created  time.Time
	served   int
	returned atomic.Bool
}

// ID returns the pool-assigned handle identifier.
func (h *Handle) ID() string { return h.id }

// Served returns the number of pages rendered since the instance was created.
func (h *Handle) Served() int { return h.served }

// Render renders one page through the leased instance and counts it against
// the recycle threshold.
func (h *Handle) Render(ctx context.Context, pageURL string) (*model.FetchResult, error) {
	h.served++
	return h.instance.Render(ctx, pageURL)
}

// Pool is a fixed-size pool of browser instances handed out as leases.
type Pool struct {
	factory        Factory
	size           int
	recycleAfter   int
	acquireTimeout time.Duration
	logger         *slog.Logger

	// slots carries the pool's free capacity: a *Handle for a live idle
	// instance, nil for an empty slot whose instance is created on demand.
	slots chan *Handle

	closeOnce sync.Once
	closed    chan struct{}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSize sets the maximum number of live browser instances.
func WithSize(n int) PoolOption {
	return func(p *Pool) {
		p.size = n
	}
}

// WithRecycleThreshold sets how many pages an instance serves before it is
// torn down on release instead of returning to the idle set.
func WithRecycleThreshold(n int) PoolOption {
	return func(p *Pool) {
		p.recycleAfter = n
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a free handle.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.acquireTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a pool that materializes instances through factory.
func NewPool(factory Factory, opts ...PoolOption) *Pool {
	p := &Pool{
		factory:        factory,
		size:           config.DefaultBrowserPoolSize,
		recycleAfter:   config.DefaultBrowserRecycleAfter,
		acquireTimeout: config.DefaultBrowserAcquireTimeout,
		logger:         slog.Default(),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.slots = make(chan *Handle, p.size)
	for i := 0; i < p.size; i++ {
		p.slots <- nil // empty slot, instance created on first acquire
	}
	return p
}

// Acquire leases a handle, waiting until one is free or the acquire timeout
// elapses. The caller must return the handle via Release or Retire on every
// exit path.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	var h *Handle
	select {
	case h = <-p.slots:
	case <-timer.C:
		return nil, fmt.Errorf("%w: no free handle within %v", ErrPoolExhausted, p.acquireTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	}

	if h == nil {
		instance, err := p.factory(ctx)
		if err != nil {
			p.slots <- nil // give the slot back before failing
			return nil, fmt.Errorf("%w: instance creation failed: %v", ErrPoolExhausted, err)
		}
		h = &Handle{
			id:       uuid.NewString(),
			instance: instance,
			created:  time.Now(),
		}
		p.logger.Debug("browser instance created", "handle", h.id)
	}

	h.returned.Store(false)
	return h, nil
}

// Release returns a leased handle to the pool. A handle that has reached
// the recycle threshold, or that is returned after Close, is torn down
// instead, and its slot refills lazily on the next acquire. Release is
// idempotent per lease.
func (p *Pool) Release(h *Handle) {
	if h == nil || !h.returned.CompareAndSwap(false, true) {
		return
	}

	if p.draining() {
		p.closeInstance(h)
		return
	}
	if h.served >= p.recycleAfter {
		p.logger.Debug("recycling browser instance",
			"handle", h.id, "served", h.served)
		p.closeInstance(h)
		p.slots <- nil
		return
	}
	p.slots <- h
}

// Retire tears down a leased handle immediately, regardless of its request
// count. Use it when the instance is known bad (render crash, protocol
// error) so the next acquire gets a fresh one.
func (p *Pool) Retire(h *Handle) {
	if h == nil || !h.returned.CompareAndSwap(false, true) {
		return
	}
	p.logger.Debug("retiring browser instance", "handle", h.id)
	p.closeInstance(h)
	if p.draining() {
		return
	}
	p.slots <- nil
}

// draining reports whether Close has begun shutting the pool down.
func (p *Pool) draining() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Pool) closeInstance(h *Handle) {
	if err := h.instance.Close(); err != nil {
		p.logger.Warn("browser instance close failed", "handle", h.id, "error", err)
	}
}

// Render leases a handle for the duration of one page render. The lease is
// returned on every exit path; a failed render retires the instance.
//
// Pool satisfies the fetcher's Renderer interface through this method.
func (p *Pool) Render(ctx context.Context, pageURL string) (*model.FetchResult, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// The deferred return covers error returns and panics alike, so a
	// crash mid-render cannot leak the lease.
	healthy := false
	defer func() {
		if healthy {
			p.Release(h)
		} else {
			p.Retire(h)
		}
	}()

	result, err := h.Render(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	healthy = true
	return result, nil
}

// Close shuts the pool down: idle instances are torn down and subsequent
// Acquire calls fail with ErrPoolClosed. Handles still leased at shutdown
// are torn down by their holder's Release or Retire.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for i := 0; i < p.size; i++ {
			select {
			case h := <-p.slots:
				if h != nil {
					p.closeInstance(h)
				}
			default:
				// Slot currently leased; its holder's Release/Retire sees the
				// closed pool and tears the instance down itself.
			}
		}
	})
}
