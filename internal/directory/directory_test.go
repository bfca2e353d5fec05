package directory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func TestRegister(t *testing.T) {
	t.Run("creates online session and bumps counter", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h1"))

		assert.True(t, d.Exists("alice"))
		assert.True(t, d.IsOnline("alice"))
		assert.Equal(t, 1, d.OnlineCount())

		s, ok := d.Find("alice")
		require.True(t, ok)
		assert.Equal(t, "h1", s.Handle)
		assert.Equal(t, model.StatusOnline, s.Status)
	})

	t.Run("rejects duplicate login", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h1"))

		err := d.Register("alice", "h2")
		assert.Equal(t, apperrors.ErrCodeLoginExists, apperrors.GetCode(err))
		assert.Equal(t, 1, d.OnlineCount())
		assert.Equal(t, 1, d.TotalCount())
	})
}

func TestLoginLogout(t *testing.T) {
	t.Run("login after logout restores presence without duplicates", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("carol", "h1"))
		require.NoError(t, d.Logout("carol"))
		assert.False(t, d.IsOnline("carol"))
		assert.Equal(t, 0, d.OnlineCount())

		d.Login("carol", "h2")
		assert.True(t, d.IsOnline("carol"))
		assert.Equal(t, 1, d.OnlineCount())
		assert.Equal(t, 1, d.TotalCount())

		s, _ := d.Find("carol")
		assert.Equal(t, "h2", s.Handle)
	})

	t.Run("login creates unknown session", func(t *testing.T) {
		d := New()
		d.Login("dave", "h")
		assert.True(t, d.IsOnline("dave"))
		assert.Equal(t, 1, d.OnlineCount())
	})

	t.Run("login of online session keeps counter", func(t *testing.T) {
		d := New()
		d.Login("dave", "h1")
		d.Login("dave", "h2")
		assert.Equal(t, 1, d.OnlineCount())
	})

	t.Run("second logout is a no-op on the counter", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h"))
		require.NoError(t, d.Register("bob", "h"))

		require.NoError(t, d.Logout("alice"))
		assert.Equal(t, 1, d.OnlineCount())
		require.NoError(t, d.Logout("alice"))
		assert.Equal(t, 1, d.OnlineCount())

		s, _ := d.Find("alice")
		assert.Empty(t, s.Handle)
	})

	t.Run("logout of unknown login fails", func(t *testing.T) {
		d := New()
		err := d.Logout("ghost")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Run("away keeps the session online", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h"))
		require.NoError(t, d.UpdateStatus("alice", model.StatusAway))

		assert.True(t, d.IsOnline("alice"))
		assert.Equal(t, 1, d.OnlineCount())
	})

	t.Run("crossing the offline boundary adjusts counter", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h"))

		require.NoError(t, d.UpdateStatus("alice", model.StatusOffline))
		assert.Equal(t, 0, d.OnlineCount())

		require.NoError(t, d.UpdateStatus("alice", model.StatusInvisible))
		assert.Equal(t, 1, d.OnlineCount())
	})

	t.Run("out of range status is rejected without change", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Register("alice", "h"))

		err := d.UpdateStatus("alice", model.Status(7))
		assert.Equal(t, apperrors.ErrCodeInvalidMessage, apperrors.GetCode(err))

		s, _ := d.Find("alice")
		assert.Equal(t, model.StatusOnline, s.Status)
	})

	t.Run("unknown login fails", func(t *testing.T) {
		d := New()
		err := d.UpdateStatus("ghost", model.StatusBusy)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestOnlineLogins(t *testing.T) {
	d := New()
	require.NoError(t, d.Register("carol", "h"))
	require.NoError(t, d.Register("alice", "h"))
	require.NoError(t, d.Register("bob", "h"))
	require.NoError(t, d.Logout("bob"))

	assert.Equal(t, []string{"alice", "carol"}, d.OnlineLogins())
	assert.Len(t, d.Sessions(), 3)
}

func TestEvictInactive(t *testing.T) {
	t.Run("removes idle sessions and fixes counter", func(t *testing.T) {
		clock := newClock()
		d := New(WithClock(clock.Now))

		require.NoError(t, d.Register("alice", "h"))
		require.NoError(t, d.Register("bob", "h"))
		require.NoError(t, d.Logout("bob"))

		clock.Advance(200 * time.Second)
		d.Touch("alice")
		clock.Advance(200 * time.Second)

		evicted := d.EvictInactive(300 * time.Second)
		assert.Equal(t, []string{"bob"}, evicted)
		assert.False(t, d.Exists("bob"))
		assert.Equal(t, 1, d.OnlineCount())

		clock.Advance(200 * time.Second)
		evicted = d.EvictInactive(300 * time.Second)
		assert.Equal(t, []string{"alice"}, evicted)
		assert.Equal(t, 0, d.OnlineCount())
		assert.Equal(t, 0, d.TotalCount())
	})

	t.Run("session exactly at the timeout survives", func(t *testing.T) {
		clock := newClock()
		d := New(WithClock(clock.Now))
		require.NoError(t, d.Register("alice", "h"))

		clock.Advance(300 * time.Second)
		assert.Empty(t, d.EvictInactive(300*time.Second))
	})

	t.Run("evicted login must register again", func(t *testing.T) {
		clock := newClock()
		d := New(WithClock(clock.Now))
		require.NoError(t, d.Register("alice", "h"))
		clock.Advance(time.Hour)
		d.EvictInactive(time.Minute)

		assert.NoError(t, d.Register("alice", "h"))
	})
}

func TestConcurrentAccessKeepsCounter(t *testing.T) {
	d := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			login := fmt.Sprintf("user%d", i%10)
			d.Login(login, "h")
			if i%3 == 0 {
				_ = d.Logout(login)
			}
			_ = d.UpdateStatus(login, model.StatusBusy)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(d.OnlineLogins()), d.OnlineCount())
}
