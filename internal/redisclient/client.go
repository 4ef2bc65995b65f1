package redisclient

import (
	"context"
	"errors"
	"time"

	"github.com/casahub/casahub/internal/security"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Put implements security.TokenStore.
func (c *Client) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.redisdb.Set(ctx, key, value, ttl).Err()
}

// Take implements security.TokenStore. GETDEL keeps read+invalidate atomic.
func (c *Client) Take(ctx context.Context, key string) (string, error) {
	v, err := c.redisdb.GetDel(ctx, key).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", security.ErrTokenInvalid
		}
		return "", err
	}

	return v, nil
}
