package persist

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/orbithq/orbit/internal/config"
)

// RedisRemote keeps the shared document blob under a single redis key.
// It is the remote tier for deployments where several store instances
// share one backing copy.
type RedisRemote struct {
	Client *redis.Client
	key    string
}

// NewRedisRemote initializes the redis client from config. Only Addr is
// mandatory, Password/DB are optional.
func NewRedisRemote(cfg *config.Config) *RedisRemote {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisRemote{Client: redis.NewClient(opts), key: cfg.Redis.Key}
}

func (r *RedisRemote) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisRemote) Read(ctx context.Context) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisRemote) Write(ctx context.Context, data []byte) error {
	return r.Client.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisRemote) Clear(ctx context.Context) error {
	return r.Client.Del(ctx, r.key).Err()
}
