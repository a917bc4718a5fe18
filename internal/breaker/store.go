package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists per-provider circuit state. Implementations apply a
// TTL: expired state reads back as nil, which callers treat as a fresh
// closed circuit.
type StateStore interface {
	Get(ctx context.Context, provider string) (*Circuit, error)
	Set(ctx context.Context, provider string, circuit *Circuit) error
}

const redisKeyPrefix = "breaker:"

// RedisStateStore shares circuit state across instances through Redis
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a Redis-backed circuit state store
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStateStore) Get(ctx context.Context, provider string) (*Circuit, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+provider).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get circuit state: %w", err)
	}

	var circuit Circuit
	if err := json.Unmarshal(data, &circuit); err != nil {
		return nil, fmt.Errorf("failed to decode circuit state: %w", err)
	}
	return &circuit, nil
}

func (s *RedisStateStore) Set(ctx context.Context, provider string, circuit *Circuit) error {
	data, err := json.Marshal(circuit)
	if err != nil {
		return fmt.Errorf("failed to encode circuit state: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+provider, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set circuit state: %w", err)
	}
	return nil
}

// MemoryStateStore keeps circuit state in-process. It backs tests and the
// degraded mode when Redis is down; its state is local to one instance.
type MemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[string]memoryEntry
}

type memoryEntry struct {
	circuit   Circuit
	expiresAt time.Time
}

// NewMemoryStateStore creates an in-process circuit state store
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		ttl:     ttl,
		clock:   realClock{},
		entries: make(map[string]memoryEntry),
	}
}

// WithClock replaces the store's clock. Intended for tests.
func (s *MemoryStateStore) WithClock(clock Clock) *MemoryStateStore {
	s.clock = clock
	return s
}

func (s *MemoryStateStore) Get(_ context.Context, provider string) (*Circuit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[provider]
	if !ok {
		return nil, nil
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.entries, provider)
		return nil, nil
	}

	circuit := entry.circuit
	return &circuit, nil
}

func (s *MemoryStateStore) Set(_ context.Context, provider string, circuit *Circuit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[provider] = memoryEntry{
		circuit:   *circuit,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	return nil
}

// FallbackStateStore prefers the primary store and degrades to the fallback
// when the primary errors. With Redis as primary and memory as fallback,
// breaker decisions stay instance-local during a Redis outage instead of
// disappearing entirely.
type FallbackStateStore struct {
	primary  StateStore
	fallback StateStore
	logger   *slog.Logger
}

// NewFallbackStateStore chains a primary store with a degraded-mode fallback
func NewFallbackStateStore(logger *slog.Logger, primary, fallback StateStore) *FallbackStateStore {
	return &FallbackStateStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FallbackStateStore) Get(ctx context.Context, provider string) (*Circuit, error) {
	circuit, err := s.primary.Get(ctx, provider)
	if err == nil {
		return circuit, nil
	}

	s.logger.Warn("Primary circuit store unavailable, using fallback",
		"provider", provider,
		"error", err,
	)
	return s.fallback.Get(ctx, provider)
}

func (s *FallbackStateStore) Set(ctx context.Context, provider string, circuit *Circuit) error {
	if err := s.primary.Set(ctx, provider, circuit); err != nil {
		s.logger.Warn("Primary circuit store unavailable, writing to fallback",
			"provider", provider,
			"error", err,
		)
		return s.fallback.Set(ctx, provider, circuit)
	}

	// Keep the fallback warm so a Redis outage starts from recent state
	_ = s.fallback.Set(ctx, provider, circuit)
	return nil
}
