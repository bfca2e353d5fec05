package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/audit"
	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/httputil"
	"github.com/openclaw/messenger-server-go/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/stats", h.Stats)

	// Sessions
	r.Get("/users", h.ListUsers)
	r.Get("/users/{login}", h.GetUser)

	// Offline queue
	r.Get("/offline", h.ListOffline)
	r.Delete("/offline/{id}", h.DeleteOffline)

	// Archive
	r.Get("/history/{login}", h.History)

	return r
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.adminService.GetStats())
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sessions, total := h.adminService.GetSessions(p.limit, p.offset)

	items := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, formatSession(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	session, err := h.adminService.GetSession(login)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSession(*session))
}

func (h *AdminHandler) ListOffline(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	receiver := r.URL.Query().Get("receiver")

	pending, total := h.adminService.GetPending(receiver, p.limit, p.offset)

	items := make([]map[string]any, 0, len(pending))
	for _, m := range pending {
		items = append(items, formatPending(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *AdminHandler) DeleteOffline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		httputil.WriteError(w, apperrors.ValidationError("id must be an unsigned 32-bit integer"))
		return
	}

	if err := h.adminService.RemovePending(uint32(id)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventOfflineRemoved,
		Details: map[string]interface{}{"messageId": uint32(id)},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	p, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	messages, total, err := h.adminService.GetHistory(r.Context(), login, p.limit, p.offset)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrCodeUnavailable) {
			log.Error().Err(err).Str("login", login).Msg("failed to load history")
		}
		httputil.WriteError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, formatArchived(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}
