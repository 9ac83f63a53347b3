// Package kv defines the shared K/V store capability (§6: sessions,
// password vault, price cache, circuit-breaker state, detection idempotency
// keys) and a redis-backed implementation. It is an out-of-scope external
// collaborator per spec.md §1 — Store is the narrow interface the core
// depends on, so any K/V backend can stand in for tests.
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal capability the core needs from a shared K/V store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value under key with the given TTL (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// GetDel atomically reads and deletes key ("consume" semantics for the
	// vault's strict-mode session password).
	GetDel(ctx context.Context, key string) (string, error)
	// Del unconditionally deletes key. Missing keys are not an error.
	Del(ctx context.Context, key string) error
	// Publish sends payload on channel for the Event Bus (C5).
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns a channel of messages published to channel; the
	// returned Subscription must be closed by the caller.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live pub/sub handle.
type Subscription interface {
	Channel() <-chan string
	Close() error
}

// RedisStore implements Store against a real redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr/db with the given password (empty = no auth).
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Publish(ctx context.Context, channel, payload string) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- msg.Payload
		}
	}()
	return &redisSubscription{pubsub: pubsub, ch: out}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan string
}

func (s *redisSubscription) Channel() <-chan string { return s.ch }
func (s *redisSubscription) Close() error           { return s.pubsub.Close() }
