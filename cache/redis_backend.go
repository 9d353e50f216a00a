package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/byokit/byokit/errs"
)

// redisEntry is Entry's wire shape: CreatedAt round-trips through JSON so
// a restarted process can still evaluate the TTL an entry was written
// with.
type redisEntry struct {
	Value      []byte    `json:"value"`
	Compressed bool      `json:"compressed"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// RedisBackend is the optional networked storage shape from §4.7, used
// when cached responses need to survive a restart or be shared across
// byokit instances. TTL enforcement is delegated to Cache (which compares
// CreatedAt against its own configured TTL); the Redis-side expiry passed
// to NewRedisBackend is only a backstop against unbounded growth.
type RedisBackend struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisBackend wraps an existing client. expiry bounds how long Redis
// itself retains an entry; pass 0 to rely entirely on Cache's own TTL
// check.
func NewRedisBackend(client *redis.Client, namespace string, expiry time.Duration) *RedisBackend {
	if namespace == "" {
		namespace = "byokit:cache"
	}
	return &RedisBackend{client: client, prefix: namespace + ":", expiry: expiry}
}

func (r *RedisBackend) key(fingerprint string) string {
	return r.prefix + fingerprint
}

func (r *RedisBackend) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.StorageError, "", "reading cache entry from redis", err)
	}
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, false, errs.Wrap(errs.StorageError, "", "decoding cache entry from redis", err)
	}
	return &Entry{
		Value:      re.Value,
		Compressed: re.Compressed,
		Provider:   re.Provider,
		Model:      re.Model,
		CreatedAt:  re.CreatedAt,
	}, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, fingerprint string, entry *Entry) error {
	raw, err := json.Marshal(redisEntry{
		Value:      entry.Value,
		Compressed: entry.Compressed,
		Provider:   entry.Provider,
		Model:      entry.Model,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return errs.Wrap(errs.StorageError, "", "encoding cache entry for redis", err)
	}
	if err := r.client.Set(ctx, r.key(fingerprint), raw, r.expiry).Err(); err != nil {
		return errs.Wrap(errs.StorageError, "", "writing cache entry to redis", err)
	}
	return nil
}

func (r *RedisBackend) Remove(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, r.key(fingerprint)).Err(); err != nil {
		return errs.Wrap(errs.StorageError, "", "removing cache entry from redis", err)
	}
	return nil
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errs.Wrap(errs.StorageError, "", "scanning cache entries in redis", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errs.Wrap(errs.StorageError, "", "clearing cache entries in redis", err)
	}
	return nil
}
