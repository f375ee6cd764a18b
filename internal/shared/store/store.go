package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the thin atomic-operations layer over the shared Redis instance.
// Every cross-request invariant (queue FIFO pop, seat-lock exclusivity,
// working-slot counting) is enforced here through single round-trip scripts,
// never by in-process locks, because multiple service instances run against
// the same store.
type Store struct {
	client  *redis.Client
	scripts []string
}

// New creates a Store. Scripts registered via RegisterScript are preloaded
// by PreloadScripts at boot; execution still falls back to EVAL when a
// script is missing (e.g. after a Redis restart).
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying client for read paths that need plain
// commands (status queries, rate limiting).
func (s *Store) Client() *redis.Client {
	return s.client
}

// RegisterScript queues a Lua script for preloading.
func (s *Store) RegisterScript(src string) {
	s.scripts = append(s.scripts, src)
}

// PreloadScripts loads all registered Lua scripts into the Redis script cache.
func (s *Store) PreloadScripts(ctx context.Context) error {
	for _, src := range s.scripts {
		if _, err := s.client.ScriptLoad(ctx, src).Result(); err != nil {
			return fmt.Errorf("failed to load script: %w", err)
		}
	}
	return nil
}

// Eval executes a Lua script, trying the script cache first and falling back
// to a plain EVAL when the script is not loaded.
func (s *Store) Eval(ctx context.Context, src string, keysArg []string, args ...interface{}) (interface{}, error) {
	result, err := s.client.EvalSha(ctx, src, keysArg, args...).Result()
	if err != nil {
		result, err = s.client.Eval(ctx, src, keysArg, args...).Result()
		if err != nil {
			return nil, fmt.Errorf("script execution failed: %w", err)
		}
	}
	return result, nil
}

// EvalInt executes a script whose result is a single integer.
func (s *Store) EvalInt(ctx context.Context, src string, keysArg []string, args ...interface{}) (int64, error) {
	result, err := s.Eval(ctx, src, keysArg, args...)
	if err != nil {
		return 0, err
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return n, nil
}

// EvalSlice executes a script whose result is an array reply.
func (s *Store) EvalSlice(ctx context.Context, src string, keysArg []string, args ...interface{}) ([]interface{}, error) {
	result, err := s.Eval(ctx, src, keysArg, args...)
	if err != nil {
		return nil, err
	}
	arr, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result type %T", result)
	}
	return arr, nil
}

// Counter and plain-key operations used by the non-scripted paths.

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keysArg ...string) error {
	return s.client.Del(ctx, keysArg...).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n == 1, err
}

// Sorted-set reads backing the pure status queries.

// ZRank returns the 0-based rank of member, or -1 when absent.
func (s *Store) ZRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *Store) ZRem(ctx context.Context, key, member string) (int64, error) {
	return s.client.ZRem(ctx, key, member).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}
