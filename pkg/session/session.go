// Package session issues and resolves bearer tokens for logged-in users.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a session stays valid.
const DefaultTTL = time.Hour

// ErrNotFound indicates an unknown or expired token.
var ErrNotFound = errors.New("session not found")

// Store maps tokens to user names.
type Store interface {
	Create(ctx context.Context, user string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

const keyPrefix = "session:"

// Redis keeps sessions in Redis with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client. A zero ttl means DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Create stores a new session for user and returns its token.
func (s *Redis) Create(ctx context.Context, user string) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, keyPrefix+token, user, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup returns the user owning token.
func (s *Redis) Lookup(ctx context.Context, token string) (string, error) {
	user, err := s.client.Get(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) || (err == nil && user == "") {
		return "", ErrNotFound
	}
	return user, err
}

// Delete ends the session.
func (s *Redis) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, keyPrefix+token).Err()
}

type entry struct {
	user    string
	expires time.Time
}

// Memory keeps sessions in process.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]entry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory returns an empty store. A zero ttl means DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{sessions: make(map[string]entry), ttl: ttl, now: time.Now}
}

// Create stores a new session for user and returns its token.
func (s *Memory) Create(ctx context.Context, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.sessions[token] = entry{user: user, expires: s.now().Add(s.ttl)}
	return token, nil
}

// Lookup returns the user owning token.
func (s *Memory) Lookup(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	if !ok {
		return "", ErrNotFound
	}
	if !s.now().Before(e.expires) {
		delete(s.sessions, token)
		return "", ErrNotFound
	}
	return e.user, nil
}

// Delete ends the session.
func (s *Memory) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
