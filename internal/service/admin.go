package service

import (
	"context"

	"github.com/openclaw/messenger-server-go/internal/directory"
	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/offline"
	"github.com/openclaw/messenger-server-go/internal/repository"
)

// Counter reports how many messages the router has handled.
type Counter interface {
	Processed() uint64
}

// AdminService answers read-mostly queries over live server state for the
// admin API.
type AdminService struct {
	dir     *directory.Directory
	store   *offline.Store
	counter Counter
	archive repository.MessageArchive
}

func NewAdminService(
	dir *directory.Directory,
	store *offline.Store,
	counter Counter,
	archive repository.MessageArchive,
) *AdminService {
	return &AdminService{
		dir:     dir,
		store:   store,
		counter: counter,
		archive: archive,
	}
}

type Stats struct {
	Sessions struct {
		Online int `json:"online"`
		Total  int `json:"total"`
	} `json:"sessions"`
	Offline struct {
		Pending  int `json:"pending"`
		Capacity int `json:"capacity"`
	} `json:"offline"`
	Processed      uint64 `json:"processed"`
	ArchiveEnabled bool   `json:"archiveEnabled"`
}

func (s *AdminService) GetStats() *Stats {
	stats := &Stats{}
	stats.Sessions.Online = s.dir.OnlineCount()
	stats.Sessions.Total = s.dir.TotalCount()
	stats.Offline.Pending = s.store.Count()
	stats.Offline.Capacity = s.store.Capacity()
	stats.Processed = s.counter.Processed()
	stats.ArchiveEnabled = s.archive != nil
	return stats
}

// Sessions

func (s *AdminService) GetSessions(limit, offset int) ([]model.Session, int) {
	sessions := s.dir.Sessions()
	return page(sessions, limit, offset), len(sessions)
}

func (s *AdminService) GetSession(login string) (*model.Session, error) {
	session, ok := s.dir.Find(login)
	if !ok {
		return nil, apperrors.LoginNotFound(login)
	}
	return &session, nil
}

// Offline queue

func (s *AdminService) GetPending(receiver string, limit, offset int) ([]offline.PendingMessage, int) {
	pending := s.store.List(receiver)
	return page(pending, limit, offset), len(pending)
}

func (s *AdminService) RemovePending(id uint32) error {
	return s.store.Remove(id)
}

// History

func (s *AdminService) GetHistory(ctx context.Context, login string, limit, offset int) ([]model.ArchivedMessage, int, error) {
	if s.archive == nil {
		return nil, 0, apperrors.Unavailable("Message history")
	}

	messages, err := s.archive.FindByLogin(ctx, login, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.archive.CountByLogin(ctx, login)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return messages, total, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
