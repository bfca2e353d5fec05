package transport

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("transport closed")

type Channel int

const (
	// ChannelCommand carries requests that each expect exactly one reply.
	ChannelCommand Channel = iota + 1
	// ChannelEvent carries fire-and-forget messages.
	ChannelEvent
)

func (c Channel) String() string {
	switch c {
	case ChannelCommand:
		return "command"
	case ChannelEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Inbound is one message pulled from either inbound channel.
type Inbound struct {
	Channel Channel
	Payload []byte
	ReplyTo string
}

// Transport is what the server loop needs from the wire.
type Transport interface {
	// Poll waits up to timeout for the next inbound message. It returns
	// nil, nil when nothing arrived.
	Poll(ctx context.Context, timeout time.Duration) (*Inbound, error)
	Reply(ctx context.Context, replyTo string, payload []byte) error
	Publish(ctx context.Context, frame string) error
	Close() error
}

// Subscriber receives fan-out frames. The returned channel is closed when
// ctx is done or the transport closes.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}
