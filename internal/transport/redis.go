package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/protocol"
	redisclient "github.com/openclaw/messenger-server-go/internal/redis"
)

type RedisOptions struct {
	CommandKey string
	EventKey   string
	FanoutKey  string
	ReplyTTL   time.Duration
}

// Redis maps the three channels onto two lists and one pub/sub channel.
// Commands arrive wrapped in a protocol.CommandEnvelope; replies are pushed
// onto the list named by the envelope.
type Redis struct {
	client *redisclient.Client
	opts   RedisOptions
	closed atomic.Bool
}

func NewRedis(client *redisclient.Client, opts RedisOptions) *Redis {
	return &Redis{client: client, opts: opts}
}

func (t *Redis) Poll(ctx context.Context, timeout time.Duration) (*Inbound, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	res, err := t.client.BRPop(ctx, timeout, t.opts.CommandKey, t.opts.EventKey).Result()
	if errors.Is(err, redisclient.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("poll channels: %w", err)
	}

	key, payload := res[0], []byte(res[1])
	if key == t.opts.EventKey {
		return &Inbound{Channel: ChannelEvent, Payload: payload}, nil
	}

	env, err := protocol.DecodeEnvelope(payload)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dropping command without usable envelope")
		return nil, nil
	}
	return &Inbound{Channel: ChannelCommand, Payload: env.Message, ReplyTo: env.ReplyTo}, nil
}

func (t *Redis) Reply(ctx context.Context, replyTo string, payload []byte) error {
	if replyTo == "" {
		return fmt.Errorf("reply: empty reply address")
	}
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, replyTo, payload)
		pipe.Expire(ctx, replyTo, t.opts.ReplyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push reply: %w", err)
	}
	return nil
}

func (t *Redis) Publish(ctx context.Context, frame string) error {
	if err := t.client.Publish(ctx, t.opts.FanoutKey, frame).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

func (t *Redis) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := t.client.Subscribe(ctx, t.opts.FanoutKey)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe fanout: %w", err)
	}

	log.Debug().Str("channel", t.opts.FanoutKey).Msg("redis pubsub subscribed")

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close marks the transport closed. The shared redis client is owned by the
// caller.
func (t *Redis) Close() error {
	t.closed.Store(true)
	return nil
}
