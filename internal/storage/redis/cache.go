package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	client := redis.NewClient(opt)

	return &Client{client}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

func (c *Client) CacheCatalog(ctx context.Context, prefix string, names []string) error {
	key := fmt.Sprintf("catalog:%s", prefix)
	return c.SetJSON(ctx, key, names, 5*time.Minute)
}

func (c *Client) GetCachedCatalog(ctx context.Context, prefix string) ([]string, error) {
	key := fmt.Sprintf("catalog:%s", prefix)
	var names []string
	if err := c.GetJSON(ctx, key, &names); err != nil {
		return nil, err
	}
	return names, nil
}
