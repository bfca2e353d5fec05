package client

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/model"
)

// Sender is the command path Keepalive beats on.
type Sender interface {
	Send(ctx context.Context, msg model.Message) (model.Reply, error)
}

// KeepaliveInterval beats twice per inactivity window.
func KeepaliveInterval(inactivity time.Duration) time.Duration {
	if inactivity <= 0 {
		return 0
	}
	return inactivity / 2
}

// Keepalive sends a get_users for the current login every interval so the
// server keeps refreshing its activity. Nothing is sent while login returns
// "". A rejected beat means the server no longer knows the session; lost is
// called with the login and the reply, and beating continues for whatever
// login reports next.
func Keepalive(ctx context.Context, s Sender, interval time.Duration, login func() string, lost func(string, model.Reply)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		name := login()
		if name == "" {
			continue
		}
		reply, err := s.Send(ctx, model.Message{Type: model.TypeGetUsers, Sender: name})
		if err != nil {
			log.Warn().Err(err).Str("login", name).Msg("heartbeat failed")
			continue
		}
		if !reply.OK() && lost != nil {
			lost(name, reply)
		}
	}
}
