package keystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/byokit/byokit/errs"
)

// RedisBackend is the Indexed-persistent storage shape from §4.3: a
// queryable, networked store. Each provider's record is stored as its own
// JSON value under a namespaced key so List can use a SCAN rather than
// pulling every record into memory.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. namespace is prefixed onto
// every key so multiple byokit instances can share one Redis database
// without colliding.
func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = "byokit:keystore"
	}
	return &RedisBackend{client: client, prefix: namespace + ":"}
}

func (r *RedisBackend) key(provider string) string {
	return r.prefix + provider
}

func (r *RedisBackend) Get(ctx context.Context, provider string) (*Stored, bool, error) {
	raw, err := r.client.Get(ctx, r.key(provider)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.StorageError, provider, "reading key record from redis", err)
	}
	var rec Stored
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errs.Wrap(errs.StorageError, provider, "decoding key record from redis", err)
	}
	return &rec, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, provider string, rec *Stored) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.StorageError, provider, "encoding key record for redis", err)
	}
	if err := r.client.Set(ctx, r.key(provider), raw, 0).Err(); err != nil {
		return errs.Wrap(errs.StorageError, provider, "writing key record to redis", err)
	}
	return nil
}

func (r *RedisBackend) Remove(ctx context.Context, provider string) error {
	if err := r.client.Del(ctx, r.key(provider)).Err(); err != nil {
		return errs.Wrap(errs.StorageError, provider, "removing key record from redis", err)
	}
	return nil
}

func (r *RedisBackend) List(ctx context.Context) ([]string, error) {
	var providers []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		providers = append(providers, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errs.Wrap(errs.StorageError, "", "scanning key records in redis", err)
	}
	return providers, nil
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	providers, err := r.List(ctx)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return nil
	}
	keys := make([]string, len(providers))
	for i, p := range providers {
		keys[i] = r.key(p)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errs.Wrap(errs.StorageError, "", "clearing key records in redis", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}
