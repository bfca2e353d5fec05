package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/protocol"
	redisclient "github.com/openclaw/messenger-server-go/internal/redis"
)

var ErrTimeout = errors.New("no reply from server")

type Options struct {
	CommandKey string
	EventKey   string
	FanoutKey  string
	// ReplyPrefix namespaces the per-request reply lists.
	ReplyPrefix string
	Timeout     time.Duration
}

// Client talks to the server through the same redis lists and channel the
// server polls.
type Client struct {
	rdb  *redisclient.Client
	opts Options
}

func New(rdb *redisclient.Client, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Client{rdb: rdb, opts: opts}
}

// Send pushes msg on the command channel and waits for its reply.
func (c *Client) Send(ctx context.Context, msg model.Message) (model.Reply, error) {
	replyTo := redisclient.ReplyKey(c.opts.ReplyPrefix, uuid.NewString())
	payload, err := protocol.EncodeEnvelope(replyTo, msg)
	if err != nil {
		return model.Reply{}, err
	}

	if err := c.rdb.LPush(ctx, c.opts.CommandKey, payload).Err(); err != nil {
		return model.Reply{}, fmt.Errorf("push command: %w", err)
	}

	res, err := c.rdb.BRPop(ctx, c.opts.Timeout, replyTo).Result()
	if errors.Is(err, redisclient.Nil) {
		return model.Reply{}, ErrTimeout
	}
	if err != nil {
		return model.Reply{}, fmt.Errorf("wait reply: %w", err)
	}
	return protocol.DecodeReply([]byte(res[1]))
}

// Notify pushes msg on the fire-and-forget channel.
func (c *Client) Notify(ctx context.Context, msg model.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := c.rdb.LPush(ctx, c.opts.EventKey, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Watch streams parsed fan-out frames until ctx is done.
func (c *Client) Watch(ctx context.Context) (<-chan protocol.Frame, error) {
	pubsub := c.rdb.Subscribe(ctx, c.opts.FanoutKey)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe fanout: %w", err)
	}

	out := make(chan protocol.Frame)
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
				case out <- protocol.Parse(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Visible reports whether a terminal logged in as login shows f. Direct and
// offline messages only reach their two parties; raw lines are always shown.
func Visible(f protocol.Frame, login string) bool {
	if f.IsRaw() || f.Receiver == protocol.AllReceivers {
		return true
	}
	if login == "" {
		return false
	}
	return f.Receiver == login || f.Sender == login
}
