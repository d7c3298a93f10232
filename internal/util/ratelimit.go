package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum pause between consecutive upstream requests. The
// first call to Wait returns immediately; after Done every later Wait blocks
// until delay has passed since that request finished.
type Pacer struct {
	mu      sync.Mutex
	limit   rate.Limit
	limiter *rate.Limiter
	delay   time.Duration
}

// NewPacer creates a Pacer pausing delay between requests. A non-positive
// delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limit:   limit,
		limiter: rate.NewLimiter(limit, 1),
		delay:   delay,
	}
}

// Delay returns the configured pause between requests.
func (p *Pacer) Delay() time.Duration { return p.delay }

// Wait blocks until the next request may be sent or the context is
// cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	return limiter.Wait(ctx)
}

// Done records that a request has finished. The bucket is restarted empty so
// the next Wait sleeps the full delay from now, however long the request
// took.
func (p *Pacer) Done() {
	limiter := rate.NewLimiter(p.limit, 1)
	limiter.Allow()

	p.mu.Lock()
	p.limiter = limiter
	p.mu.Unlock()
}
