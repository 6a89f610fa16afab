package localstore

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for widget-local state.
const redisPrefix = "widget:"

var knownKeys = []string{KeyGuestSessionID, KeySessionID, KeyConversationID, KeyGuestMessages}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string `json:"url"` // redis://host:port
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// RedisStore keeps widget-local state in Redis, for deployments where the
// widget host is ephemeral. Graceful fallback: if Redis is unreachable,
// operations return zero values instead of blocking the widget.
type RedisStore struct {
	client *redis.Client
	scope  string // namespaces state per widget instance
}

// NewRedisStore connects to Redis. On connection failure it logs and
// returns a store whose operations are no-ops.
func NewRedisStore(cfg RedisConfig, scope string) *RedisStore {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Redis] invalid URL: %v", err)
		return &RedisStore{scope: scope}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] connection failed, falling back to no-op: %v", err)
		return &RedisStore{scope: scope}
	}

	log.Println("[Redis] connected")
	return &RedisStore{client: c, scope: scope}
}

// Connected reports whether the backing client is live.
func (r *RedisStore) Connected() bool { return r.client != nil }

func (r *RedisStore) Get(key string) (string, bool) {
	if r.client == nil {
		return "", false
	}
	ctx, cancel := opCtx()
	defer cancel()
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *RedisStore) Set(key, value string) error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisStore) Delete(key string) error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) Clear() error {
	if r.client == nil {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()
	keys := make([]string, 0, len(knownKeys))
	for _, k := range knownKeys {
		keys = append(keys, r.key(k))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) key(key string) string {
	return redisPrefix + r.scope + ":" + key
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
