package smbcore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PoolOptions configures the Context Pool (§4.B).
type PoolOptions struct {
	// ConnTimeout bounds dialing and authenticating a new SmbContext.
	ConnTimeout time.Duration
	// IdleTimeout is how long an unreferenced SmbContext is kept mounted
	// before the janitor tears it down.
	IdleTimeout time.Duration
	// JanitorInterval is how often the idle sweep runs.
	JanitorInterval time.Duration
	// Logger receives connect/teardown diagnostics; nil means silent.
	Logger Logger
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.ConnTimeout <= 0 {
		o.ConnTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.JanitorInterval <= 0 {
		o.JanitorInterval = 30 * time.Second
	}
	return o
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	OpenContexts int
	InUse        int
}

// Pool is the Context Pool (§4.B): one SmbContext per distinct Endpoint,
// shared and refcounted across every Handle that names that endpoint, torn
// down after IdleTimeout of zero references. Endpoint's field set is its
// own identity, so it is used directly as the map key.
type Pool struct {
	opts PoolOptions
	dial func(ctx context.Context, ep Endpoint, timeout time.Duration, logger Logger) (*SmbContext, error)

	mu       sync.Mutex
	contexts map[Endpoint]*SmbContext
	closed   bool

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewPool creates a Context Pool and starts its idle-sweep janitor.
func NewPool(opts PoolOptions) *Pool {
	return newPoolWithDialer(opts, dialSmbContext)
}

// newPoolWithDialer builds a Pool using dial in place of dialSmbContext, the
// seam pool_test.go and integration_test.go use to back a Pool with
// newMockSmbContext instead of a live TCP/SMB handshake.
func newPoolWithDialer(opts PoolOptions, dial func(ctx context.Context, ep Endpoint, timeout time.Duration, logger Logger) (*SmbContext, error)) *Pool {
	opts = opts.withDefaults()
	p := &Pool{
		opts:        opts,
		dial:        dial,
		contexts:    make(map[Endpoint]*SmbContext),
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go p.janitorLoop()
	return p
}

// Acquire returns the live SmbContext for ep, dialing and mounting a new one
// if none exists yet, and increments its refcount. Callers must call
// Release when done.
func (p *Pool) Acquire(ctx context.Context, ep Endpoint) (*SmbContext, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, connectFailedError(ep.String(), errPoolClosed)
	}
	if c, ok := p.contexts[ep]; ok {
		c.acquire()
		p.mu.Unlock()
		if c.echo(ctx) == nil {
			return c, nil
		}
		// Stale connection (server closed it out from under us, or the idle
		// TCP connection dropped). Discard and fall through to dial fresh.
		p.mu.Lock()
		if cur, ok := p.contexts[ep]; ok && cur == c {
			delete(p.contexts, ep)
		}
		p.mu.Unlock()
		c.release()
		go c.close()
	} else {
		p.mu.Unlock()
	}

	c, err := p.dial(ctx, ep, p.opts.ConnTimeout, p.opts.Logger)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.close()
		return nil, connectFailedError(ep.String(), errPoolClosed)
	}
	if existing, ok := p.contexts[ep]; ok {
		// Lost a race with a concurrent Acquire for the same Endpoint; keep
		// the one already installed and drop the duplicate we just dialed.
		existing.acquire()
		p.mu.Unlock()
		c.close()
		return existing, nil
	}
	p.contexts[ep] = c
	p.mu.Unlock()
	return c, nil
}

// Release decrements ep's refcount; the context is left mounted until the
// janitor reclaims it after IdleTimeout, so a rapid re-acquire of the same
// endpoint is cheap.
func (p *Pool) Release(c *SmbContext) {
	c.release()
}

// Stats reports current pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := PoolStats{OpenContexts: len(p.contexts)}
	for _, c := range p.contexts {
		if c.inUse() {
			stats.InUse++
		}
	}
	return stats
}

func (p *Pool) janitorLoop() {
	defer close(p.janitorDone)
	t := time.NewTicker(p.opts.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweep()
		case <-p.stopJanitor:
			return
		}
	}
}

func (p *Pool) sweep() {
	p.mu.Lock()
	var stale []*SmbContext
	for ep, c := range p.contexts {
		if c.inUse() {
			continue
		}
		if time.Since(c.idleSince()) >= p.opts.IdleTimeout {
			delete(p.contexts, ep)
			stale = append(stale, c)
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		if p.opts.Logger != nil {
			p.opts.Logger.Printf("smbcore: closing idle context for %s", c.endpoint)
		}
		c.close()
	}
}

// Close stops the janitor and tears down every context concurrently,
// returning the first error encountered (§4.B).
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	contexts := make([]*SmbContext, 0, len(p.contexts))
	for ep, c := range p.contexts {
		delete(p.contexts, ep)
		contexts = append(contexts, c)
	}
	p.mu.Unlock()

	close(p.stopJanitor)
	<-p.janitorDone

	var g errgroup.Group
	for _, c := range contexts {
		c := c
		g.Go(func() error {
			return c.close()
		})
	}
	return g.Wait()
}

var errPoolClosed = poolClosedError{}

type poolClosedError struct{}

func (poolClosedError) Error() string { return "pool closed" }
