package signature

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore remembers accepted nonces. Claim must be atomic: of any number
// of concurrent calls with the same nonce, exactly one reports fresh.
type NonceStore interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (fresh bool, err error)
}

type MemoryNonceStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{seen: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryNonceStore) Claim(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > time.Minute {
		for k, exp := range s.seen {
			if !now.Before(exp) {
				delete(s.seen, k)
			}
		}
		s.lastSweep = now
	}

	if exp, ok := s.seen[nonce]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[nonce] = now.Add(ttl)
	return true, nil
}

func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// RedisNonceStore shares nonce state between replicas. SETNX gives the
// insert-if-absent guarantee and the key TTL does the expiry.
type RedisNonceStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisNonceStore(client redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: "giftrelay:nonce:"}
}

func (s *RedisNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+nonce, 1, ttl).Result()
}
