package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = log.Output(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	t.Run("writes presence fields", func(t *testing.T) {
		buf := captureLog(t)

		Log(context.Background(), Event{
			Type:    EventEvicted,
			Login:   "alice",
			Details: map[string]interface{}{"idleSeconds": int64(400), "wasOnline": true},
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "presence", entry["audit"])
		assert.Equal(t, "evicted", entry["event_type"])
		assert.Equal(t, "alice", entry["login"])
		assert.Equal(t, float64(400), entry["idleSeconds"])
		assert.Equal(t, true, entry["wasOnline"])
		assert.NotContains(t, entry, "ip")
	})

	t.Run("request events carry client address", func(t *testing.T) {
		buf := captureLog(t)

		req := httptest.NewRequest("DELETE", "/v1/offline/1", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		req.Header.Set("User-Agent", "curl")
		LogFromRequest(req, Event{Type: EventOfflineRemoved})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "10.0.0.1", entry["ip"])
		assert.Equal(t, "curl", entry["user_agent"])
	})
}
