package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/audit"
	"github.com/openclaw/messenger-server-go/internal/config"
	"github.com/openclaw/messenger-server-go/internal/directory"
	"github.com/openclaw/messenger-server-go/internal/metrics"
	"github.com/openclaw/messenger-server-go/internal/offline"
	"github.com/openclaw/messenger-server-go/internal/repository"
)

// Counter reports how many messages the router has handled.
type Counter interface {
	Processed() uint64
}

type MaintenanceConfig struct {
	Interval          time.Duration
	InactivityTimeout time.Duration
	Retention         time.Duration
	ArchiveRetention  time.Duration
	// SnapshotInterval of zero disables periodic saves.
	SnapshotInterval time.Duration
}

// MaintenanceJob evicts idle sessions, expires old offline messages and
// snapshots the store. The server loop drives it through RunIfDue.
type MaintenanceJob struct {
	dir     *directory.Directory
	store   *offline.Store
	counter Counter
	archive repository.MessageArchive
	cfg     MaintenanceConfig
	now     func() time.Time

	mu           sync.Mutex
	lastRun      time.Time
	lastSnapshot time.Time
}

type Option func(*MaintenanceJob)

func WithArchive(archive repository.MessageArchive) Option {
	return func(j *MaintenanceJob) {
		j.archive = archive
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *MaintenanceJob) {
		j.now = now
	}
}

func NewMaintenanceJob(dir *directory.Directory, store *offline.Store, counter Counter, cfg MaintenanceConfig, opts ...Option) *MaintenanceJob {
	j := &MaintenanceJob{
		dir:     dir,
		store:   store,
		counter: counter,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	start := j.now()
	j.lastRun = start
	j.lastSnapshot = start
	return j
}

// RunIfDue runs one pass when at least Interval has passed since the last
// one and reports whether it ran.
func (j *MaintenanceJob) RunIfDue(ctx context.Context) bool {
	j.mu.Lock()
	now := j.now()
	if now.Sub(j.lastRun) < j.cfg.Interval {
		j.mu.Unlock()
		return false
	}
	j.lastRun = now
	j.mu.Unlock()

	j.Run(ctx)
	return true
}

// Run performs one maintenance pass unconditionally.
func (j *MaintenanceJob) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, config.MaintenanceTimeout)
	defer cancel()

	j.evict(ctx)
	j.runCleanup(ctx, "offline messages", func(context.Context) (int64, error) {
		n := j.store.CleanupOlderThan(j.cfg.Retention)
		metrics.ExpiredMessages.Add(float64(n))
		return int64(n), nil
	})
	if j.archive != nil && j.cfg.ArchiveRetention > 0 {
		j.runCleanup(ctx, "archived messages", func(ctx context.Context) (int64, error) {
			return j.archive.DeleteOlderThan(ctx, j.now().Add(-j.cfg.ArchiveRetention))
		})
	}
	j.snapshot()
	j.report()
}

func (j *MaintenanceJob) evict(ctx context.Context) {
	evicted := j.dir.EvictInactive(j.cfg.InactivityTimeout)
	for _, login := range evicted {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventEvicted,
			Login:   login,
			Details: map[string]interface{}{"timeout": j.cfg.InactivityTimeout.String()},
		})
	}
	if len(evicted) > 0 {
		metrics.EvictedSessions.Add(float64(len(evicted)))
		log.Info().Int("count", len(evicted)).Msg("evicted inactive sessions")
	}
}

func (j *MaintenanceJob) snapshot() {
	if j.cfg.SnapshotInterval <= 0 {
		return
	}

	j.mu.Lock()
	now := j.now()
	if now.Sub(j.lastSnapshot) < j.cfg.SnapshotInterval {
		j.mu.Unlock()
		return
	}
	j.lastSnapshot = now
	j.mu.Unlock()

	if err := j.store.Save(); err != nil {
		log.Error().Err(err).Str("path", j.store.Path()).Msg("failed to snapshot offline store")
	}
}

func (j *MaintenanceJob) report() {
	online := j.dir.OnlineCount()
	pending := j.store.Count()

	metrics.OnlineSessions.Set(float64(online))
	metrics.KnownSessions.Set(float64(j.dir.TotalCount()))
	metrics.PendingMessages.Set(float64(pending))

	log.Info().
		Uint64("processed", j.counter.Processed()).
		Int("online", online).
		Int("pending", pending).
		Msg("server stats")
}

func (j *MaintenanceJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
