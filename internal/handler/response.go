package handler

import (
	"net/http"
	"time"

	"github.com/openclaw/messenger-server-go/internal/httputil"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/offline"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSession(s model.Session) map[string]any {
	return map[string]any{
		"login":        s.Login,
		"status":       s.Status.String(),
		"online":       s.Online(),
		"lastActivity": s.LastActivity.Format(time.RFC3339),
		"createdAt":    s.CreatedAt.Format(time.RFC3339),
	}
}

func formatPending(m offline.PendingMessage) map[string]any {
	return map[string]any{
		"id":               m.ID,
		"sender":           m.Sender,
		"receiver":         m.Receiver,
		"body":             m.Body,
		"timestamp":        m.Timestamp,
		"enqueuedAt":       m.EnqueuedAt.Format(time.RFC3339),
		"deliveryAttempts": m.DeliveryAttempts,
	}
}

func formatArchived(m model.ArchivedMessage) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"messageId":   m.MessageID,
		"sender":      m.Sender,
		"receiver":    m.Receiver,
		"body":        m.Body,
		"status":      m.Status,
		"sentAt":      m.SentAt.Format(time.RFC3339),
		"deliveredAt": formatTime(m.DeliveredAt),
	}
}
