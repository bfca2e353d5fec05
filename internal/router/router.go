package router

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/audit"
	"github.com/openclaw/messenger-server-go/internal/directory"
	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/metrics"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/offline"
	"github.com/openclaw/messenger-server-go/internal/protocol"
	"github.com/openclaw/messenger-server-go/internal/repository"
)

// Publisher sends frames on the fan-out channel.
type Publisher interface {
	Publish(ctx context.Context, frame string) error
}

// Router validates inbound messages and applies them to the directory and
// the offline store. It keeps no per-connection state.
type Router struct {
	dir       *directory.Directory
	store     *offline.Store
	publisher Publisher
	archive   repository.MessageArchive
	ids       *offline.IDGenerator
	now       func() time.Time
	processed atomic.Uint64
}

type Option func(*Router)

// WithArchive records routed text messages. A nil archive disables history.
func WithArchive(archive repository.MessageArchive) Option {
	return func(r *Router) {
		r.archive = archive
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func New(dir *directory.Directory, store *offline.Store, publisher Publisher, opts ...Option) *Router {
	r := &Router{
		dir:       dir,
		store:     store,
		publisher: publisher,
		ids:       offline.NewIDGenerator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle routes one message arriving from handle and returns the reply the
// command channel would carry. Fire-and-forget callers drop it.
func (r *Router) Handle(ctx context.Context, handle string, msg model.Message) model.Reply {
	start := time.Now()

	info, err := r.dispatch(ctx, handle, msg)
	reply := protocol.NewReply(msg, err, info)

	r.processed.Add(1)
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(apperrors.GetCode(err)))
		log.Debug().
			Err(err).
			Str("type", msg.Type.String()).
			Str("sender", msg.Sender).
			Msg("message rejected")
	}
	metrics.MessagesTotal.WithLabelValues(msg.Type.String(), result).Inc()
	metrics.HandleDuration.WithLabelValues(msg.Type.String()).Observe(time.Since(start).Seconds())

	return reply
}

// Processed is the number of messages handled since start.
func (r *Router) Processed() uint64 {
	return r.processed.Load()
}

func (r *Router) dispatch(ctx context.Context, handle string, msg model.Message) (string, error) {
	if err := protocol.ValidateMessage(msg); err != nil {
		return "", err
	}

	switch msg.Type {
	case model.TypeRegister:
		return r.register(ctx, handle, msg)
	case model.TypeLogin:
		return r.login(ctx, handle, msg)
	case model.TypeLogout:
		return r.logout(ctx, msg)
	case model.TypeText:
		return r.text(ctx, msg)
	case model.TypeBroadcast:
		return r.broadcast(ctx, msg)
	case model.TypeSetStatus:
		return r.setStatus(ctx, msg)
	case model.TypeGetUsers:
		return r.getUsers(msg)
	}
	return "", apperrors.InvalidMessage("unknown message type")
}

func (r *Router) register(ctx context.Context, handle string, msg model.Message) (string, error) {
	if err := r.dir.Register(msg.Sender, handle); err != nil {
		return "", err
	}
	audit.Log(ctx, audit.Event{Type: audit.EventRegister, Login: msg.Sender, Handle: handle})

	r.publish(ctx, protocol.SystemNotice(fmt.Sprintf("Welcome %s to the chat!", msg.Sender), r.now().Unix()))
	return r.authenticated(ctx, msg.Sender), nil
}

func (r *Router) login(ctx context.Context, handle string, msg model.Message) (string, error) {
	wasOnline := r.dir.IsOnline(msg.Sender)
	r.dir.Login(msg.Sender, handle)
	audit.Log(ctx, audit.Event{Type: audit.EventLogin, Login: msg.Sender, Handle: handle})

	if !wasOnline {
		r.publish(ctx, protocol.SystemNotice(fmt.Sprintf("User %s joined", msg.Sender), r.now().Unix()))
	}
	return r.authenticated(ctx, msg.Sender), nil
}

func (r *Router) logout(ctx context.Context, msg model.Message) (string, error) {
	wasOnline := r.dir.IsOnline(msg.Sender)
	if err := r.dir.Logout(msg.Sender); err != nil {
		return "", err
	}
	audit.Log(ctx, audit.Event{Type: audit.EventLogout, Login: msg.Sender})

	if wasOnline {
		r.publish(ctx, protocol.SystemNotice(fmt.Sprintf("User %s left", msg.Sender), r.now().Unix()))
	}
	return "", nil
}

// authenticated runs on every transition into the authenticated state and
// flushes whatever was queued for login.
func (r *Router) authenticated(ctx context.Context, login string) string {
	n := r.deliverPending(ctx, login)
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("Delivered %d offline messages", n)
}

func (r *Router) deliverPending(ctx context.Context, login string) int {
	pending := r.store.DrainFor(login)
	if len(pending) == 0 {
		return 0
	}

	now := r.now()
	for _, m := range pending {
		r.publish(ctx, protocol.OfflineMessage(m.Sender, m.Receiver, m.Body, int64(m.Timestamp)))
		if r.archive != nil {
			if err := r.archive.MarkDelivered(ctx, m.ID, m.Receiver, now); err != nil {
				log.Warn().Err(err).Uint32("messageId", m.ID).Msg("failed to mark archived message delivered")
			}
		}
	}
	metrics.OfflineDelivered.Add(float64(len(pending)))

	log.Info().
		Str("login", login).
		Int("count", len(pending)).
		Msg("delivered offline messages")
	return len(pending)
}

func (r *Router) text(ctx context.Context, msg model.Message) (string, error) {
	if !r.dir.IsOnline(msg.Sender) {
		return "", apperrors.NotAuthorized(msg.Sender)
	}
	r.dir.Touch(msg.Sender)
	if !r.dir.Exists(msg.Receiver) {
		return "", apperrors.LoginNotFound(msg.Receiver)
	}

	now := r.now()
	id := r.ids.NextFree(r.store.Has)
	ts := msg.Timestamp
	if ts == 0 {
		ts = uint32(now.Unix())
	}

	if r.dir.IsOnline(msg.Receiver) {
		r.publish(ctx, protocol.DirectMessage(msg.Sender, msg.Receiver, msg.Text, int64(ts)))
		r.record(ctx, id, msg, model.ArchiveStatusDelivered, now)
		return "", nil
	}

	err := r.store.Add(offline.PendingMessage{
		ID:        id,
		Type:      model.TypeText,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Body:      msg.Text,
		Timestamp: ts,
		Flags:     msg.Flags,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("sender", msg.Sender).
			Str("receiver", msg.Receiver).
			Msg("offline store rejected message")
		return "", err
	}
	metrics.PendingMessages.Set(float64(r.store.Count()))
	r.record(ctx, id, msg, model.ArchiveStatusQueued, now)

	log.Info().
		Uint32("messageId", id).
		Str("sender", msg.Sender).
		Str("receiver", msg.Receiver).
		Msg("message queued for offline receiver")
	return "Message queued for offline delivery", nil
}

func (r *Router) broadcast(ctx context.Context, msg model.Message) (string, error) {
	if !r.dir.IsOnline(msg.Sender) {
		return "", apperrors.NotAuthorized(msg.Sender)
	}
	r.dir.Touch(msg.Sender)

	now := r.now()
	ts := msg.Timestamp
	if ts == 0 {
		ts = uint32(now.Unix())
	}
	r.publish(ctx, protocol.BroadcastMessage(msg.Sender, msg.Text, int64(ts)))
	r.record(ctx, r.ids.NextFree(r.store.Has), model.Message{Sender: msg.Sender, Receiver: protocol.AllReceivers, Text: msg.Text}, model.ArchiveStatusBroadcast, now)
	return "", nil
}

func (r *Router) setStatus(ctx context.Context, msg model.Message) (string, error) {
	status, err := protocol.RequestedStatus(msg)
	if err != nil {
		return "", err
	}
	if err := r.dir.UpdateStatus(msg.Sender, status); err != nil {
		return "", err
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventStatusChange,
		Login:   msg.Sender,
		Details: map[string]interface{}{"status": status.String()},
	})

	r.publish(ctx, protocol.SystemNotice(fmt.Sprintf("User %s is now %s", msg.Sender, status), r.now().Unix()))
	return "", nil
}

func (r *Router) getUsers(msg model.Message) (string, error) {
	if !r.dir.IsOnline(msg.Sender) {
		return "", apperrors.NotAuthorized(msg.Sender)
	}
	r.dir.Touch(msg.Sender)
	return "Online users: " + strings.Join(r.dir.OnlineLogins(), ", "), nil
}

// publish never fails the request; fan-out is best effort.
func (r *Router) publish(ctx context.Context, frame protocol.Frame) {
	metrics.FramesTotal.WithLabelValues(string(frame.Kind)).Inc()
	if err := r.publisher.Publish(ctx, frame.String()); err != nil {
		metrics.TransportErrors.WithLabelValues("publish").Inc()
		log.Error().
			Err(err).
			Str("kind", string(frame.Kind)).
			Msg("failed to publish frame")
	}
}

func (r *Router) record(ctx context.Context, id uint32, msg model.Message, status model.ArchiveStatus, at time.Time) {
	if r.archive == nil {
		return
	}
	_, err := r.archive.Create(ctx, model.CreateArchivedMessageParams{
		MessageID: id,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Body:      msg.Text,
		Status:    status,
		SentAt:    at,
	})
	if err != nil {
		log.Warn().Err(err).Uint32("messageId", id).Msg("failed to archive message")
	}
}
