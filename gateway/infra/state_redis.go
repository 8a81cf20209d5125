package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore implementa domain.StateStore sobre Redis.
//
// Update usa WATCH/MULTI/EXEC (optimistic locking): se outra instância do
// gateway alterar a chave no meio do read-modify-write, a transação é
// descartada e refeita até maxRetries vezes.
type RedisStateStore struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
}

type RedisStateOption func(*RedisStateStore)

func WithStatePrefix(prefix string) RedisStateOption {
	return func(s *RedisStateStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStateMaxRetries(n int) RedisStateOption {
	return func(s *RedisStateStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedisStateStore(rdb redis.UniversalClient, opts ...RedisStateOption) *RedisStateStore {
	s := &RedisStateStore{
		rdb:        rdb,
		prefix:     "gateway:state",
		maxRetries: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrStateContention indica que o Update desistiu após esgotar as tentativas.
var ErrStateContention = errors.New("state store: too much contention")

func (s *RedisStateStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (s *RedisStateStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStateStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			cur = nil
		} else if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrStateContention, key)
}
