package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Memory is an in-process transport backed by a buffered channel. It keeps
// every reply and published frame so callers can inspect them.
type Memory struct {
	inbound chan Inbound
	done    chan struct{}

	mu         sync.Mutex
	closed     bool
	replies    map[string][][]byte
	frames     []string
	subs       map[chan string]struct{}
	replyErr   error
	publishErr error
}

func NewMemory(buffer int) *Memory {
	return &Memory{
		inbound: make(chan Inbound, buffer),
		done:    make(chan struct{}),
		replies: make(map[string][][]byte),
		subs:    make(map[chan string]struct{}),
	}
}

// SendCommand queues a command whose reply will be stored under replyTo.
func (m *Memory) SendCommand(replyTo string, payload []byte) error {
	return m.send(Inbound{Channel: ChannelCommand, Payload: payload, ReplyTo: replyTo})
}

func (m *Memory) SendEvent(payload []byte) error {
	return m.send(Inbound{Channel: ChannelEvent, Payload: payload})
}

func (m *Memory) send(in Inbound) error {
	select {
	case <-m.done:
		return ErrClosed
	case m.inbound <- in:
		return nil
	}
}

func (m *Memory) Poll(ctx context.Context, timeout time.Duration) (*Inbound, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case in := <-m.inbound:
		return &in, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrClosed
	}
}

func (m *Memory) Reply(ctx context.Context, replyTo string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies[replyTo] = append(m.replies[replyTo], payload)
	return nil
}

func (m *Memory) Publish(ctx context.Context, frame string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}
	m.frames = append(m.frames, frame)
	for sub := range m.subs {
		select {
		case sub <- frame:
		default:
			log.Warn().Msg("memory subscriber buffer full, dropping frame")
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 64)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Replies returns what was sent to replyTo so far.
func (m *Memory) Replies(replyTo string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.replies[replyTo]))
	copy(out, m.replies[replyTo])
	return out
}

// Frames returns every published frame in order.
func (m *Memory) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.frames))
	copy(out, m.frames)
	return out
}

func (m *Memory) SetReplyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyErr = err
}

func (m *Memory) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}
