// Package ratelimit gates outbound requests so the whole fan-out stays under
// a provider quota. Calls over the quota are delayed, never dropped.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter admits one outbound request per Acquire call.
type Limiter interface {
	// Acquire blocks until one more request may be issued. It returns an
	// error only when ctx is done before admission.
	Acquire(ctx context.Context) error
	// Delayed returns how many acquisitions had to wait.
	Delayed() int64
}

// Mode selects a Limiter implementation.
type Mode string

const (
	ModeWindow Mode = "window"
	ModeBucket Mode = "bucket"
)

// New returns a limiter admitting perSecond requests per second.
func New(mode Mode, perSecond int) (Limiter, error) {
	if perSecond <= 0 {
		return nil, eris.Errorf("ratelimit: requests per second must be positive, got %d", perSecond)
	}
	switch mode {
	case ModeWindow, "":
		return NewWindow(perSecond, time.Second), nil
	case ModeBucket:
		return NewBucket(perSecond), nil
	default:
		return nil, eris.Errorf("ratelimit: unknown limiter mode %q", mode)
	}
}

// Window admits at most limit requests per fixed window. The counter and the
// window start are reset together once the window has elapsed.
type Window struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	start   time.Time
	count   int
	delayed atomic.Int64
	now     func() time.Time
}

// NewWindow creates a Window admitting limit requests per window.
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire implements Limiter.
func (w *Window) Acquire(ctx context.Context) error {
	waited := false
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "ratelimit: acquire")
		}

		w.mu.Lock()
		now := w.now()
		if w.start.IsZero() || now.Sub(w.start) >= w.window {
			w.start = now
			w.count = 0
		}
		if w.count < w.limit {
			w.count++
			w.mu.Unlock()
			return nil
		}
		wait := w.window - now.Sub(w.start)
		w.mu.Unlock()

		if !waited {
			waited = true
			w.delayed.Add(1)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "ratelimit: acquire")
		case <-timer.C:
		}
	}
}

// Delayed implements Limiter.
func (w *Window) Delayed() int64 {
	return w.delayed.Load()
}

// Bucket is a token-bucket limiter with burst equal to the per-second rate.
type Bucket struct {
	limiter *rate.Limiter
	delayed atomic.Int64
}

// NewBucket creates a Bucket admitting perSecond requests per second.
func NewBucket(perSecond int) *Bucket {
	return &Bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// Acquire implements Limiter.
func (b *Bucket) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "ratelimit: acquire")
	}
	r := b.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	b.delayed.Add(1)

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		r.Cancel()
		return eris.Wrap(ctx.Err(), "ratelimit: acquire")
	case <-timer.C:
		return nil
	}
}

// Delayed implements Limiter.
func (b *Bucket) Delayed() int64 {
	return b.delayed.Load()
}

// Unlimited admits every request immediately.
type Unlimited struct{}

// Acquire implements Limiter.
func (Unlimited) Acquire(ctx context.Context) error {
	return eris.Wrap(ctx.Err(), "ratelimit: acquire")
}

// Delayed implements Limiter.
func (Unlimited) Delayed() int64 { return 0 }
