package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/metrics"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/protocol"
	"github.com/openclaw/messenger-server-go/internal/transport"
)

// Handler routes one decoded message.
type Handler interface {
	Handle(ctx context.Context, handle string, msg model.Message) model.Reply
}

// Maintainer runs periodic housekeeping between polls.
type Maintainer interface {
	RunIfDue(ctx context.Context) bool
}

// Snapshotter persists state that must survive a restart.
type Snapshotter interface {
	Save() error
	Path() string
}

type Config struct {
	PollTimeout time.Duration
	// ErrorBackoff is the pause after a failed poll.
	ErrorBackoff time.Duration
}

// Server is the single-threaded dispatch loop between the transport and the
// router.
type Server struct {
	cfg         Config
	transport   transport.Transport
	handler     Handler
	maintenance Maintainer
	store       Snapshotter
	stopped     atomic.Bool
}

func New(cfg Config, t transport.Transport, handler Handler, maintenance Maintainer, store Snapshotter) *Server {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 500 * time.Millisecond
	}
	return &Server{
		cfg:         cfg,
		transport:   t,
		handler:     handler,
		maintenance: maintenance,
		store:       store,
	}
}

// Run polls until Stop is called, ctx is done or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Dur("pollTimeout", s.cfg.PollTimeout).Msg("server loop started")
	defer log.Info().Msg("server loop stopped")

	for !s.stopped.Load() {
		if ctx.Err() != nil {
			return nil
		}

		in, err := s.transport.Poll(ctx, s.cfg.PollTimeout)
		switch {
		case errors.Is(err, transport.ErrClosed):
			return nil
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			metrics.TransportErrors.WithLabelValues("poll").Inc()
			log.Error().Err(err).Msg("failed to poll transport")
			s.pause(ctx)
		case in != nil:
			s.dispatch(context.WithoutCancel(ctx), in)
		}

		if s.maintenance != nil {
			s.maintenance.RunIfDue(context.WithoutCancel(ctx))
		}
	}
	return nil
}

// Stop makes Run return after the current iteration.
func (s *Server) Stop() {
	s.stopped.Store(true)
}

// Shutdown closes the transport and saves the offline store. Call it after
// Run has returned.
func (s *Server) Shutdown() {
	if err := s.transport.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close transport")
	}
	if s.store == nil {
		return
	}
	if err := s.store.Save(); err != nil {
		log.Error().Err(err).Str("path", s.store.Path()).Msg("failed to save offline store")
		return
	}
	log.Info().Str("path", s.store.Path()).Msg("offline store saved")
}

func (s *Server) pause(ctx context.Context) {
	timer := time.NewTimer(s.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Server) dispatch(ctx context.Context, in *transport.Inbound) {
	reply := s.process(ctx, in)
	if in.Channel != transport.ChannelCommand {
		if reply.Code != apperrors.WireSuccess {
			log.Debug().
				Str("type", reply.OriginalType.String()).
				Str("error", reply.Error).
				Msg("event rejected")
		}
		return
	}

	payload, err := protocol.EncodeReply(reply)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode reply")
		return
	}
	if err := s.transport.Reply(ctx, in.ReplyTo, payload); err != nil {
		metrics.TransportErrors.WithLabelValues("reply").Inc()
		log.Error().Err(err).Str("replyTo", in.ReplyTo).Msg("failed to send reply")
	}
}

// process never panics and always produces a reply.
func (s *Server) process(ctx context.Context, in *transport.Inbound) (reply model.Reply) {
	var msg model.Message
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("channel", in.Channel.String()).
				Str("type", msg.Type.String()).
				Msg("panic while handling message")
			reply = protocol.NewReply(msg, apperrors.Internal("internal error"), "")
		}
	}()

	msg, err := protocol.DecodeMessage(in.Payload)
	if err != nil {
		log.Warn().Err(err).Str("channel", in.Channel.String()).Msg("dropping undecodable message")
		return protocol.NewReply(model.Message{}, err, "")
	}
	return s.handler.Handle(ctx, in.ReplyTo, msg)
}
