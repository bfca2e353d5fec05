package sse

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/config"
	"github.com/openclaw/messenger-server-go/internal/protocol"
	"github.com/openclaw/messenger-server-go/internal/transport"
)

const (
	HeartbeatInterval = 30 * time.Second
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewFrameEvent renders a fan-out frame for the stream. Raw frames keep
// their original line.
func NewFrameEvent(f protocol.Frame) (Event, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return Event{}, err
	}
	eventType := "raw"
	if !f.IsRaw() {
		eventType = strings.ToLower(string(f.Kind))
	}
	return Event{Type: eventType, Data: data}, nil
}

// Client is one stream. An empty Login receives every frame; otherwise only
// frames sent by, addressed to or broadcast to that login.
type Client struct {
	Login  string
	Events chan Event
	Done   chan struct{}
}

func (c *Client) wants(f protocol.Frame) bool {
	if c.Login == "" {
		return true
	}
	if f.IsRaw() {
		return false
	}
	return f.Receiver == c.Login || f.Receiver == protocol.AllReceivers || f.Sender == c.Login
}

// Broker relays frames from the fan-out channel to local stream clients. The
// upstream subscription starts with the first client and lasts until Close.
type Broker struct {
	source  transport.Subscriber
	clients map[*Client]bool
	running bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(source transport.Subscriber) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		source:  source,
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(login string) *Client {
	client := &Client{
		Login:  login,
		Events: make(chan Event, config.SubscriberBuffer),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	if !b.running {
		b.running = true
		go b.subscribeToFanout()
	}
	b.clients[client] = true
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Info().
		Str("login", login).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Done)

		log.Info().
			Str("login", client.Login).
			Int("clientCount", len(b.clients)).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) subscribeToFanout() {
	ch, err := b.source.Subscribe(b.ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to subscribe to fan-out channel")
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return
	}

	log.Debug().Msg("fan-out subscription started")

	for {
		select {
		case <-b.ctx.Done():
			return

		case line, ok := <-ch:
			if !ok {
				b.mu.Lock()
				b.running = false
				b.mu.Unlock()
				return
			}
			b.broadcast(protocol.Parse(line))
		}
	}
}

func (b *Broker) broadcast(frame protocol.Frame) {
	event, err := NewFrameEvent(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode frame event")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		if !client.wants(frame) {
			continue
		}
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("login", client.Login).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[*Client]bool)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
