package domain

import (
	"sync"
	"time"
)

// Credential is one gateway API key plus its cooldown bookkeeping.
// The key itself never appears in logs, snapshots or reports.
type Credential struct {
	Key         string
	AvailableAt time.Time
}

// CredentialPool is the only state shared across sessions: an ordered key
// list with per-key cooldowns, a cascade position and an attempt counter.
// It is a pure decision object so rotation and cascade policy can be tested
// without any network call.
type CredentialPool struct {
	mu      sync.Mutex
	creds   []Credential
	next    int
	clock   func() time.Time
}

// NewCredentialPool builds a pool from an ordered key list.
func NewCredentialPool(keys []string) *CredentialPool {
	creds := make([]Credential, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			creds = append(creds, Credential{Key: k})
		}
	}
	return &CredentialPool{creds: creds, clock: time.Now}
}

// SetClock overrides the time source; test hook.
func (p *CredentialPool) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

// Size returns the number of configured credentials.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Next selects the next credential not in cooldown, round-robin with
// skip-if-cooling. When every key is cooling it returns the one that
// becomes available soonest so callers can still make progress after
// backoff. ok is false only for an empty pool.
func (p *CredentialPool) Next() (key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.creds)
	if n == 0 {
		return "", false
	}
	now := p.clock()
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if !p.creds[idx].AvailableAt.After(now) {
			p.next = (idx + 1) % n
			return p.creds[idx].Key, true
		}
	}
	// Everything is cooling; pick the soonest-available key.
	best := 0
	for i := 1; i < n; i++ {
		if p.creds[i].AvailableAt.Before(p.creds[best].AvailableAt) {
			best = i
		}
	}
	p.next = (best + 1) % n
	return p.creds[best].Key, true
}

// MarkCooldown records a rate-limit response for key. The update applies
// even when the triggering request was already cancelled; in-flight
// bookkeeping must not be lost.
func (p *CredentialPool) MarkCooldown(key string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.clock().Add(d)
	for i := range p.creds {
		if p.creds[i].Key == key && p.creds[i].AvailableAt.Before(until) {
			p.creds[i].AvailableAt = until
		}
	}
}

// CoolingCount reports how many credentials are currently in cooldown.
func (p *CredentialPool) CoolingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	n := 0
	for i := range p.creds {
		if p.creds[i].AvailableAt.After(now) {
			n++
		}
	}
	return n
}

// CascadeState tracks where a single gateway request is inside the model
// fallback cascade. Not shared; one per request.
type CascadeState struct {
	Models   []string
	Position int
	Attempt  int
	Budget   int
}

// NewCascadeState starts a cascade over the ordered model list with a
// per-model retry budget.
func NewCascadeState(models []string, budget int) *CascadeState {
	return &CascadeState{Models: models, Budget: budget}
}

// Model returns the model currently being tried.
func (c *CascadeState) Model() (string, bool) {
	if c.Position >= len(c.Models) {
		return "", false
	}
	return c.Models[c.Position], true
}

// Fail records a retryable failure. It advances to the next model once the
// current model's budget is spent (resetting the attempt counter) and
// reports whether any model remains.
func (c *CascadeState) Fail() bool {
	c.Attempt++
	if c.Attempt >= c.Budget {
		c.Position++
		c.Attempt = 0
	}
	return c.Position < len(c.Models)
}

// Exhausted reports whether every model in the cascade spent its budget.
func (c *CascadeState) Exhausted() bool { return c.Position >= len(c.Models) }
