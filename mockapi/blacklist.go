package mockapi

import (
	"sync"
	"time"
)

// Blacklist holds the ids of refresh tokens revoked by logout until they
// would have expired anyway.
type Blacklist struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewBlacklist() *Blacklist {
	return &Blacklist{revoked: make(map[string]time.Time)}
}

func (b *Blacklist) Add(jti string, exp time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = exp
}

func (b *Blacklist) IsRevoked(jti string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.revoked[jti]
	return exists
}

// Cleanup drops entries that expired before now.
func (b *Blacklist) Cleanup(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for jti, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, jti)
		}
	}
}

func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.revoked)
}
