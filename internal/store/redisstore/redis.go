// Package redisstore keeps the ledger collections as Redis string values.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ledger/internal/log"
	"ledger/internal/store"
)

// KV maps collection keys onto Redis keys, optionally prefixed.
type KV struct {
	client *redis.Client
	prefix string
}

// NewKV wraps an existing client.
func NewKV(client *redis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

// Open parses a redis:// or rediss:// URL, connects and pings.
func Open(ctx context.Context, url, prefix string, logger *log.Logger) (*store.Collections, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	kv := NewKV(client, prefix)
	if err := kv.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store.NewCollections(kv, logger), nil
}

func (k *KV) key(name string) string {
	return k.prefix + name
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := k.client.Get(ctx, k.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.client.Set(ctx, k.key(key), value, 0).Err()
}

func (k *KV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}

func (k *KV) Close() error {
	return k.client.Close()
}
