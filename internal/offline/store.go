package offline

import (
	"sync"
	"time"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

const DefaultCapacity = 10000

// PendingMessage is a text message waiting for its receiver to come back.
type PendingMessage struct {
	ID               uint32            `json:"id"`
	Type             model.MessageType `json:"type"`
	Sender           string            `json:"sender"`
	Receiver         string            `json:"receiver"`
	Body             string            `json:"body"`
	Timestamp        uint32            `json:"timestamp"`
	Flags            model.Flags       `json:"flags"`
	EnqueuedAt       time.Time         `json:"enqueuedAt"`
	DeliveryAttempts uint32            `json:"deliveryAttempts"`
}

// Store holds pending messages in insertion order behind a single mutex.
type Store struct {
	mu       sync.Mutex
	messages []PendingMessage
	capacity int
	path     string
	now      func() time.Time
}

type Option func(*Store)

func WithCapacity(capacity int) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithFile sets the path used by Save and Load.
func WithFile(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add queues msg. A full store rejects it and stays unchanged.
func (s *Store) Add(msg PendingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) >= s.capacity {
		return apperrors.ServerFull(s.capacity)
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = s.now()
	}
	if msg.Type == 0 {
		msg.Type = model.TypeText
	}
	msg.Flags |= model.FlagOfflineStore
	s.messages = append(s.messages, msg)
	return nil
}

// DrainFor removes and returns every message addressed to login, newest
// first. The returned copies carry an incremented attempt counter.
func (s *Store) DrainFor(login string) []PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var drained []PendingMessage
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Receiver == login {
			m.DeliveryAttempts++
			drained = append(drained, m)
			continue
		}
		kept = append(kept, m)
	}
	clear(s.messages[len(kept):])
	s.messages = kept

	for i, j := 0, len(drained)-1; i < j; i, j = i+1, j-1 {
		drained[i], drained[j] = drained[j], drained[i]
	}
	return drained
}

func (s *Store) Remove(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("Message")
}

// CleanupOlderThan drops messages queued longer than age ago.
func (s *Store) CleanupOlderThan(age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if now.Sub(m.EnqueuedAt) > age {
			continue
		}
		kept = append(kept, m)
	}
	removed := len(s.messages) - len(kept)
	clear(s.messages[len(kept):])
	s.messages = kept
	return removed
}

// Has reports whether a message with id is queued.
func (s *Store) Has(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) PendingFor(login string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.Receiver == login {
			n++
		}
	}
	return n
}

// List returns a copy of the queue in insertion order, optionally filtered
// by receiver.
func (s *Store) List(receiver string) []PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if receiver == "" || m.Receiver == receiver {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) Path() string {
	return s.path
}
