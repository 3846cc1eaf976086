package proof

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func nonceKey(vault, wallet, nonce string) string {
	return fmt.Sprintf("join_nonce:%s:%s:%s", vault, wallet, nonce)
}

// RedisNonceStore keeps issued nonces in redis with a TTL; GETDEL makes
// consumption single-use even across service replicas.
type RedisNonceStore struct {
	Client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{Client: client}
}

func (s *RedisNonceStore) Issue(ctx context.Context, vault, wallet, nonce string, ttl time.Duration) error {
	ok, err := s.Client.SetNX(ctx, nonceKey(vault, wallet, nonce), "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nonce already issued")
	}
	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, vault, wallet, nonce string) (bool, error) {
	_, err := s.Client.GetDel(ctx, nonceKey(vault, wallet, nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryNonceStore is the in-process substitute used in tests and
// single-replica deployments without redis.
type MemoryNonceStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{expires: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryNonceStore) Issue(_ context.Context, vault, wallet, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nonceKey(vault, wallet, nonce)
	if exp, ok := s.expires[key]; ok && s.now().Before(exp) {
		return fmt.Errorf("nonce already issued")
	}
	s.expires[key] = s.now().Add(ttl)
	return nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, vault, wallet, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nonceKey(vault, wallet, nonce)
	exp, ok := s.expires[key]
	if !ok {
		return false, nil
	}
	delete(s.expires, key)
	return s.now().Before(exp), nil
}
