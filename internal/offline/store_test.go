package offline

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

var epoch = time.Unix(1700000000, 0)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func pending(id uint32, sender, receiver, body string) PendingMessage {
	return PendingMessage{
		ID:        id,
		Type:      model.TypeText,
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		Timestamp: uint32(epoch.Unix()),
	}
}

func TestAddAndDrain(t *testing.T) {
	t.Run("drain returns the queued message once", func(t *testing.T) {
		s := NewStore(WithClock(fixedClock(epoch)))
		require.NoError(t, s.Add(pending(1, "alice", "carol", "hello")))

		got := s.DrainFor("carol")
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].Sender)
		assert.Equal(t, "hello", got[0].Body)
		assert.Equal(t, uint32(1), got[0].DeliveryAttempts)
		assert.True(t, got[0].Flags.Has(model.FlagOfflineStore))
		assert.Equal(t, epoch, got[0].EnqueuedAt)

		assert.Empty(t, s.DrainFor("carol"))
		assert.Equal(t, 0, s.Count())
	})

	t.Run("drain is newest first and leaves other receivers", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Add(pending(1, "alice", "carol", "first")))
		require.NoError(t, s.Add(pending(2, "alice", "dave", "other")))
		require.NoError(t, s.Add(pending(3, "bob", "carol", "second")))

		got := s.DrainFor("carol")
		require.Len(t, got, 2)
		assert.Equal(t, uint32(3), got[0].ID)
		assert.Equal(t, uint32(1), got[1].ID)

		assert.Equal(t, 1, s.Count())
		assert.Equal(t, 1, s.PendingFor("dave"))
	})

	t.Run("drain for unknown login is empty", func(t *testing.T) {
		s := NewStore()
		assert.Empty(t, s.DrainFor("nobody"))
	})
}

func TestCapacity(t *testing.T) {
	s := NewStore(WithCapacity(3))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add(pending(uint32(i), "alice", "bob", "x")))
	}

	err := s.Add(pending(99, "alice", "bob", "overflow"))
	assert.Equal(t, apperrors.ErrCodeServerFull, apperrors.GetCode(err))
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 3, s.Capacity())
}

func TestDefaultCapacity(t *testing.T) {
	s := NewStore()
	for i := 0; i < DefaultCapacity; i++ {
		require.NoError(t, s.Add(pending(uint32(i), "alice", "bob", "x")))
	}

	err := s.Add(pending(0, "alice", "bob", "one too many"))
	assert.Equal(t, apperrors.ErrCodeServerFull, apperrors.GetCode(err))
	assert.Equal(t, DefaultCapacity, s.Count())
}

func TestRemove(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(pending(1, "alice", "bob", "a")))
	require.NoError(t, s.Add(pending(2, "alice", "bob", "b")))

	require.NoError(t, s.Remove(1))
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, uint32(2), s.List("")[0].ID)

	err := s.Remove(1)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestCleanupOlderThan(t *testing.T) {
	now := epoch
	s := NewStore(WithClock(func() time.Time { return now }))

	require.NoError(t, s.Add(pending(1, "alice", "bob", "old")))
	now = now.Add(6 * 24 * time.Hour)
	require.NoError(t, s.Add(pending(2, "alice", "bob", "new")))
	now = now.Add(2 * 24 * time.Hour)

	removed := s.CleanupOlderThan(7 * 24 * time.Hour)
	assert.Equal(t, 1, removed)

	left := s.List("bob")
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Body)
}

func TestSaveLoad(t *testing.T) {
	t.Run("round trip reproduces the queue", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		s := NewStore(WithFile(path), WithClock(fixedClock(epoch)))

		require.NoError(t, s.Add(pending(1, "alice", "carol", "hello: there")))
		require.NoError(t, s.Add(pending(2, "bob", "carol", strings.Repeat("z", 511))))
		require.NoError(t, s.Add(pending(3, "bob", "dave", "")))
		require.NoError(t, s.Save())

		fresh := NewStore(WithFile(path))
		require.NoError(t, fresh.Load())
		assert.ElementsMatch(t, s.List(""), fresh.List(""))
	})

	t.Run("file layout is count prefix plus fixed records", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		s := NewStore(WithFile(path))
		require.NoError(t, s.Add(pending(1, "alice", "bob", "x")))
		require.NoError(t, s.Add(pending(2, "alice", "bob", "y")))
		require.NoError(t, s.Save())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[:4]))
		assert.Len(t, data, 4+2*recordSize)
		assert.Equal(t, 599, recordSize)
	})

	t.Run("missing file is an empty store", func(t *testing.T) {
		s := NewStore(WithFile(filepath.Join(t.TempDir(), "absent.dat")))
		require.NoError(t, s.Load())
		assert.Equal(t, 0, s.Count())
	})

	t.Run("truncated file fails the whole load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		s := NewStore(WithFile(path))
		require.NoError(t, s.Add(pending(1, "alice", "bob", "x")))
		require.NoError(t, s.Add(pending(2, "alice", "bob", "y")))
		require.NoError(t, s.Save())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data[:len(data)-10], 0o600))

		fresh := NewStore(WithFile(path))
		require.NoError(t, fresh.Add(pending(7, "zed", "yan", "kept")))
		err = fresh.Load()
		assert.ErrorIs(t, err, ErrCorruptFile)
		assert.Equal(t, 1, fresh.Count())
	})

	t.Run("enqueue time keeps whole seconds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		s := NewStore(WithFile(path))
		require.NoError(t, s.Add(pending(1, "alice", "bob", "x")))
		require.NoError(t, s.Save())

		fresh := NewStore(WithFile(path))
		require.NoError(t, fresh.Load())
		want := s.List("")[0].EnqueuedAt.Truncate(time.Second)
		assert.True(t, want.Equal(fresh.List("")[0].EnqueuedAt))
	})

	t.Run("corrupt record fails the whole load", func(t *testing.T) {
		valid := func() record { return toRecord(pending(1, "alice", "bob", "x")) }

		unknownType := valid()
		unknownType.Type = 0xEE

		badSender := valid()
		for i := range badSender.Sender {
			badSender.Sender[i] = 0xFF
		}

		unterminatedText := valid()
		for i := range unterminatedText.Text {
			unterminatedText.Text[i] = 'x'
		}

		emptyReceiver := valid()
		clear(emptyReceiver.Receiver[:])

		tests := []struct {
			name    string
			records []record
		}{
			{"unknown type", []record{unknownType}},
			{"sender without terminator", []record{badSender}},
			{"text without terminator", []record{unterminatedText}},
			{"empty receiver", []record{emptyReceiver}},
			{"duplicate ids", []record{valid(), valid()}},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "offline.dat")
				writeRecords(t, path, tc.records...)

				s := NewStore(WithFile(path))
				require.NoError(t, s.Add(pending(7, "zed", "yan", "kept")))
				assert.ErrorIs(t, s.Load(), ErrCorruptFile)
				assert.Equal(t, 1, s.Count())
			})
		}
	})

	t.Run("short count prefix is corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		require.NoError(t, os.WriteFile(path, []byte{1, 0}, 0o600))

		assert.ErrorIs(t, NewStore(WithFile(path)).Load(), ErrCorruptFile)
	})

	t.Run("count above capacity is corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "offline.dat")
		s := NewStore(WithFile(path))
		require.NoError(t, s.Add(pending(1, "alice", "bob", "x")))
		require.NoError(t, s.Add(pending(2, "alice", "bob", "y")))
		require.NoError(t, s.Save())

		assert.ErrorIs(t, NewStore(WithFile(path), WithCapacity(1)).Load(), ErrCorruptFile)
	})

	t.Run("no path makes save and load no-ops", func(t *testing.T) {
		s := NewStore()
		assert.NoError(t, s.Save())
		assert.NoError(t, s.Load())
	})
}

func writeRecords(t *testing.T, path string, recs ...record) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, binary.Write(f, binary.LittleEndian, uint32(len(recs))))
	for _, rec := range recs {
		require.NoError(t, binary.Write(f, binary.LittleEndian, rec))
	}
}

func TestConcurrentAddDrain(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	drained := 0

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Add(pending(uint32(i*100+j), "alice", fmt.Sprintf("r%d", i%4), "x"))
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			n := len(s.DrainFor(fmt.Sprintf("r%d", i%4)))
			mu.Lock()
			drained += n
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20*50, drained+s.Count())
}

func TestIDGenerator(t *testing.T) {
	g := NewIDGenerator()
	g.now = fixedClock(epoch)

	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}

	first := NewIDGenerator()
	first.now = fixedClock(epoch)
	assert.Equal(t, uint32(epoch.Unix()<<16)|1, first.Next())
}

func TestIDGeneratorSkipsTakenIDs(t *testing.T) {
	s := NewStore()
	g := NewIDGenerator()
	g.now = fixedClock(epoch)

	first := g.NextFree(s.Has)
	require.NoError(t, s.Add(pending(first, "alice", "bob", "x")))

	// 65536 seconds later the seconds part of the id wraps to the same value.
	g.now = fixedClock(epoch.Add(65536 * time.Second))
	g.counter.Store(first&0xFFFF - 1)
	assert.Equal(t, first, g.Next())

	g.counter.Store(first&0xFFFF - 1)
	second := g.NextFree(s.Has)
	assert.NotEqual(t, first, second)
	assert.False(t, s.Has(second))
}
