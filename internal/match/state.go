package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrScopeLocked is returned when another instance holds the scope lock.
var ErrScopeLocked = errors.New("scope lock already held")

const (
	snapshotKeyPrefix = "matchday:session:"
	lockKeyPrefix     = "matchday:lock:"
)

// SnapshotStore persists one session snapshot per scope.
type SnapshotStore interface {
	Save(ctx context.Context, scope string, snap Snapshot) error
	Load(ctx context.Context, scope string) (Snapshot, bool, error)
	Delete(ctx context.Context, scope string) error
	// Scopes lists every scope that currently has a snapshot.
	Scopes(ctx context.Context) ([]string, error)
}

// ScopeLocker serializes session creation for a scope across instances.
type ScopeLocker interface {
	LockScope(ctx context.Context, scope string) (func() error, error)
}

// RedisStore keeps snapshots in Redis and guards scopes with SET NX locks.
type RedisStore struct {
	redis   *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
	logger  zerolog.Logger
}

// NewRedisStore creates a snapshot store backed by Redis. A zero ttl keeps
// snapshots until they are deleted.
func NewRedisStore(redis *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		redis:   redis,
		ttl:     ttl,
		lockTTL: 30 * time.Second,
		logger:  logger.With().Str("component", "session_store").Logger(),
	}
}

func snapshotKey(scope string) string {
	return snapshotKeyPrefix + scope
}

// Save writes the whole snapshot.
func (s *RedisStore) Save(ctx context.Context, scope string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(scope), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot for scope, if any.
func (s *RedisStore) Load(ctx context.Context, scope string) (Snapshot, bool, error) {
	data, err := s.redis.Get(ctx, snapshotKey(scope)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// Delete drops the snapshot for scope.
func (s *RedisStore) Delete(ctx context.Context, scope string) error {
	if err := s.redis.Del(ctx, snapshotKey(scope)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Scopes walks the snapshot keys with SCAN.
func (s *RedisStore) Scopes(ctx context.Context) ([]string, error) {
	var scopes []string
	iter := s.redis.Scan(ctx, 0, snapshotKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		scopes = append(scopes, strings.TrimPrefix(iter.Val(), snapshotKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	return scopes, nil
}

// LockScope acquires a distributed lock for scope.
// Returns unlock function and error. Lock expires after 30s.
func (s *RedisStore) LockScope(ctx context.Context, scope string) (func() error, error) {
	key := lockKeyPrefix + scope
	lockValue := uuid.New().String()

	acquired, err := s.redis.SetNX(ctx, key, lockValue, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return nil, ErrScopeLocked
	}

	unlock := func() error {
		// Lua script ensures we only delete our own lock
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		return s.redis.Eval(context.Background(), script, []string{key}, lockValue).Err()
	}

	return unlock, nil
}

// MemoryStore is an in-process SnapshotStore. It stores encoded snapshots so
// reads go through the same JSON round trip as Redis.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	locks map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), locks: make(map[string]bool)}
}

func (m *MemoryStore) Save(_ context.Context, scope string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[scope] = data
	return nil
}

func (m *MemoryStore) Load(_ context.Context, scope string) (Snapshot, bool, error) {
	m.mu.Lock()
	data, ok := m.data[scope]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, scope)
	return nil
}

func (m *MemoryStore) Scopes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopes := make([]string, 0, len(m.data))
	for scope := range m.data {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (m *MemoryStore) LockScope(_ context.Context, scope string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[scope] {
		return nil, ErrScopeLocked
	}
	m.locks[scope] = true
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, scope)
		return nil
	}, nil
}
