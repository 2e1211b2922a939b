// Package ratelimit keeps fixed-window request counters per client identity in a
// bounded LRU, one limiter per endpoint class.
package ratelimit

import (
	"chalet/config"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type Class string

const (
	ClassAPI     Class = "api"
	ClassForm    Class = "form"
	ClassPayment Class = "payment"
)

const (
	pathPrefixForms    = "/v1/forms"
	pathPrefixCheckout = "/v1/checkout"
	pathPrefixBookings = "/v1/bookings"
)

// Limit is the request budget of one window.
type Limit struct {
	Window      time.Duration
	MaxRequests int
}

type Result struct {
	Limited   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, never negative.
func (r Result) RetryAfter(now time.Time) time.Duration {
	return max(r.ResetAt.Sub(now), 0)
}

type window struct {
	count   int
	resetAt time.Time
}

type Option func(*Limiter)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter counts requests per identity. The least recently seen identities are
// evicted once capacity is reached, which resets their counters.
type Limiter struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *window]
	now     func() time.Time
}

func New(capacity int, opts ...Option) (*Limiter, error) {
	entries, err := simplelru.NewLRU[string, *window](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter cache: %w", err)
	}

	limiter := &Limiter{
		entries: entries,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(limiter)
	}

	return limiter, nil
}

// Check counts one request for identity and reports whether it exceeds limit.
func (l *Limiter) Check(limit Limit, identity string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	entry, ok := l.entries.Get(identity)
	if !ok || !now.Before(entry.resetAt) {
		entry = &window{resetAt: now.Add(limit.Window)}
		l.entries.Add(identity, entry)
	}

	entry.count++

	if entry.count > limit.MaxRequests {
		return Result{
			Limited:   true,
			Limit:     limit.MaxRequests,
			Remaining: 0,
			ResetAt:   entry.resetAt,
		}
	}

	return Result{
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests - entry.count,
		ResetAt:   entry.resetAt,
	}
}

// Len is the number of identities currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.entries.Len()
}

// Registry holds an independent limiter and budget for every endpoint class.
type Registry struct {
	limiters map[Class]*Limiter
	limits   map[Class]Limit
}

func NewRegistry(cfg *config.Config, opts ...Option) (*Registry, error) {
	settings := cfg.App.RateLimiter

	limits := map[Class]Limit{
		ClassAPI:     {Window: time.Duration(settings.API.WindowMs) * time.Millisecond, MaxRequests: settings.API.MaxRequests},
		ClassForm:    {Window: time.Duration(settings.Form.WindowMs) * time.Millisecond, MaxRequests: settings.Form.MaxRequests},
		ClassPayment: {Window: time.Duration(settings.Payment.WindowMs) * time.Millisecond, MaxRequests: settings.Payment.MaxRequests},
	}

	registry := &Registry{
		limiters: make(map[Class]*Limiter, len(limits)),
		limits:   limits,
	}

	for class := range limits {
		limiter, err := New(settings.Capacity, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s limiter: %w", class, err)
		}

		registry.limiters[class] = limiter
	}

	return registry, nil
}

func (r *Registry) Check(class Class, identity string) Result {
	limiter, ok := r.limiters[class]
	if !ok {
		class = ClassAPI
		limiter = r.limiters[class]
	}

	return limiter.Check(r.limits[class], identity)
}

// Classify maps a request path to its endpoint class.
func Classify(path string) Class {
	switch {
	case strings.HasPrefix(path, pathPrefixForms):
		return ClassForm
	case strings.HasPrefix(path, pathPrefixCheckout), strings.HasPrefix(path, pathPrefixBookings):
		return ClassPayment
	default:
		return ClassAPI
	}
}
