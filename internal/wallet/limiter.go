package wallet

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pinLimiter budgets PIN verification attempts per master key so a stolen
// device cannot grind the KDF. Checked before any PBKDF2 work.
type pinLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*pinBucket
}

type pinBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newPINLimiter(limit rate.Limit, burst int, ttl time.Duration) *pinLimiter {
	return &pinLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[string]*pinBucket),
	}
}

func (p *pinLimiter) allow(key string) bool {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.entries[key]
	if b == nil {
		b = &pinBucket{lim: rate.NewLimiter(p.limit, p.burst), lastSeen: now}
		p.entries[key] = b
	}
	b.lastSeen = now

	for k, v := range p.entries {
		if now.Sub(v.lastSeen) > p.ttl {
			delete(p.entries, k)
		}
	}
	return b.lim.Allow()
}
