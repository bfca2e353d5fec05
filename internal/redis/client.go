package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Nil is returned by blocking pops that time out.
const Nil = redis.Nil

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string, pingTimeout time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ReplyKey is the list a command caller waits on for its answer.
func ReplyKey(prefix, requestID string) string {
	return fmt.Sprintf("%s:replies:%s", prefix, requestID)
}
