package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key. Buckets idle for longer
// than the idle TTL are dropped by Cleanup.
type Limiter struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LimiterOption func(*Limiter)

func WithIdleTTL(d time.Duration) LimiterOption {
	return func(l *Limiter) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LimiterOption {
	return func(l *Limiter) { l.cleanupEvery = d }
}

func NewLimiter(rps float64, burst int, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether key may make a request now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Cleanup removes idle buckets and returns how many were dropped.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run cleans up idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	if l.cleanupEvery <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(l.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Cleanup()
		}
	}
}

func (l *Limiter) retryAfter() string {
	if l.rps <= 0 {
		return "1"
	}
	secs := int(time.Duration(float64(time.Second) / float64(l.rps)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientKey identifies the caller by the host part of RemoteAddr.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
