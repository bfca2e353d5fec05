package server

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/messenger-server-go/internal/directory"
	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/offline"
	"github.com/openclaw/messenger-server-go/internal/protocol"
	"github.com/openclaw/messenger-server-go/internal/router"
	"github.com/openclaw/messenger-server-go/internal/transport"
)

type countingMaintainer struct {
	calls atomic.Int32
}

func (m *countingMaintainer) RunIfDue(ctx context.Context) bool {
	m.calls.Add(1)
	return false
}

type panickingHandler struct {
	next Handler
}

func (h panickingHandler) Handle(ctx context.Context, handle string, msg model.Message) model.Reply {
	if msg.Sender == "boom" {
		panic("handler exploded")
	}
	return h.next.Handle(ctx, handle, msg)
}

type harness struct {
	mem    *transport.Memory
	dir    *directory.Directory
	store  *offline.Store
	server *Server
	done   chan error
	cancel context.CancelFunc
}

func start(t *testing.T, wrap func(Handler) Handler, maint Maintainer, storeOpts ...offline.Option) *harness {
	t.Helper()
	mem := transport.NewMemory(16)
	dir := directory.New()
	store := offline.NewStore(storeOpts...)

	var h Handler = router.New(dir, store, mem)
	if wrap != nil {
		h = wrap(h)
	}
	srv := New(Config{PollTimeout: 10 * time.Millisecond}, mem, h, maint, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	hs := &harness{mem: mem, dir: dir, store: store, server: srv, done: done, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		hs.wait(t)
	})
	return hs
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("server loop did not stop")
	}
}

func (h *harness) command(t *testing.T, replyTo string, msg model.Message) {
	t.Helper()
	payload, err := protocol.EncodeMessage(msg)
	require.NoError(t, err)
	require.NoError(t, h.mem.SendCommand(replyTo, payload))
}

func (h *harness) reply(t *testing.T, replyTo string) model.Reply {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.mem.Replies(replyTo)) > 0
	}, time.Second, 5*time.Millisecond)

	replies := h.mem.Replies(replyTo)
	require.Len(t, replies, 1)
	reply, err := protocol.DecodeReply(replies[0])
	require.NoError(t, err)
	return reply
}

func TestCommandChannel(t *testing.T) {
	t.Run("every command gets one reply", func(t *testing.T) {
		h := start(t, nil, nil)

		h.command(t, "client-1", model.Message{Type: model.TypeRegister, ID: 3, Sender: "alice"})
		reply := h.reply(t, "client-1")

		assert.Equal(t, apperrors.WireSuccess, reply.Code)
		assert.Equal(t, model.TypeRegister, reply.OriginalType)
		assert.Equal(t, uint32(3), reply.OriginalID)
		assert.True(t, h.dir.IsOnline("alice"))
	})

	t.Run("session handle is the reply address", func(t *testing.T) {
		h := start(t, nil, nil)

		h.command(t, "client-7", model.Message{Type: model.TypeLogin, Sender: "bob"})
		h.reply(t, "client-7")

		s, ok := h.dir.Find("bob")
		require.True(t, ok)
		assert.Equal(t, "client-7", s.Handle)
	})

	t.Run("undecodable command is answered with invalid message", func(t *testing.T) {
		h := start(t, nil, nil)

		require.NoError(t, h.mem.SendCommand("client-2", []byte("{not json")))
		reply := h.reply(t, "client-2")

		assert.Equal(t, apperrors.WireInvalidMessage, reply.Code)
		assert.Equal(t, string(apperrors.ErrCodeInvalidMessage), reply.Error)
	})

	t.Run("handler panic becomes internal error and the loop keeps going", func(t *testing.T) {
		wrap := func(next Handler) Handler { return panickingHandler{next: next} }
		h := start(t, wrap, nil)

		h.command(t, "client-3", model.Message{Type: model.TypeRegister, Sender: "boom"})
		reply := h.reply(t, "client-3")
		assert.Equal(t, apperrors.WireInternal, reply.Code)

		h.command(t, "client-4", model.Message{Type: model.TypeRegister, Sender: "alice"})
		assert.Equal(t, apperrors.WireSuccess, h.reply(t, "client-4").Code)
	})

	t.Run("reply failure does not stop the loop", func(t *testing.T) {
		h := start(t, nil, nil)
		h.mem.SetReplyError(errors.New("reply list gone"))

		h.command(t, "client-5", model.Message{Type: model.TypeRegister, Sender: "alice"})
		require.Eventually(t, func() bool { return h.dir.Exists("alice") }, time.Second, 5*time.Millisecond)

		h.mem.SetReplyError(nil)
		h.command(t, "client-6", model.Message{Type: model.TypeRegister, Sender: "bob"})
		assert.Equal(t, apperrors.WireSuccess, h.reply(t, "client-6").Code)
	})
}

func TestEventChannel(t *testing.T) {
	h := start(t, nil, nil)

	payload, err := protocol.EncodeMessage(model.Message{Type: model.TypeLogin, Sender: "carol"})
	require.NoError(t, err)
	require.NoError(t, h.mem.SendEvent(payload))
	require.NoError(t, h.mem.SendEvent([]byte("garbage")))

	require.Eventually(t, func() bool { return h.dir.IsOnline("carol") }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.mem.Replies(""))
}

func TestMaintenanceIsPolled(t *testing.T) {
	maint := &countingMaintainer{}
	start(t, nil, maint)

	require.Eventually(t, func() bool { return maint.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStop(t *testing.T) {
	t.Run("stop ends run", func(t *testing.T) {
		h := start(t, nil, nil)
		h.server.Stop()
		h.wait(t)
	})

	t.Run("context cancel ends run", func(t *testing.T) {
		h := start(t, nil, nil)
		h.cancel()
		h.wait(t)
	})

	t.Run("closed transport ends run", func(t *testing.T) {
		h := start(t, nil, nil)
		require.NoError(t, h.mem.Close())
		h.wait(t)
	})
}

func TestShutdownSavesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.dat")
	h := start(t, nil, nil, offline.WithFile(path))

	h.command(t, "a", model.Message{Type: model.TypeRegister, Sender: "alice"})
	h.reply(t, "a")
	h.command(t, "b", model.Message{Type: model.TypeRegister, Sender: "bob"})
	h.reply(t, "b")
	h.command(t, "c", model.Message{Type: model.TypeLogout, Sender: "bob"})
	h.reply(t, "c")
	h.command(t, "d", model.Message{Type: model.TypeText, Sender: "alice", Receiver: "bob", Text: "later"})
	assert.Equal(t, "Message queued for offline delivery", h.reply(t, "d").Info)

	h.server.Stop()
	h.wait(t)
	h.server.Shutdown()

	_, err := h.mem.Poll(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrClosed)

	reloaded := offline.NewStore(offline.WithFile(path))
	require.NoError(t, reloaded.Load())
	pending := reloaded.List("bob")
	require.Len(t, pending, 1)
	assert.Equal(t, "later", pending[0].Body)
}
