package directory

import (
	"sort"
	"sync"
	"time"

	apperrors "github.com/openclaw/messenger-server-go/internal/errors"
	"github.com/openclaw/messenger-server-go/internal/model"
)

// Directory tracks every known login and its presence. One mutex guards the
// map and both counters so the online count always matches membership.
type Directory struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	online   int
	now      func() time.Time
}

type Option func(*Directory)

// WithClock replaces time.Now, mostly for eviction tests.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

func New(opts ...Option) *Directory {
	d := &Directory{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) Register(login, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[login]; ok {
		return apperrors.LoginExists(login)
	}
	d.insertLocked(login, handle)
	return nil
}

// Login creates the session when missing, otherwise brings it back online on
// the new handle.
func (d *Directory) Login(login, handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[login]
	if !ok {
		d.insertLocked(login, handle)
		return
	}
	if !s.Status.Online() {
		d.online++
	}
	s.Status = model.StatusOnline
	s.Handle = handle
	s.LastActivity = d.now()
}

// Logout is idempotent: logging out an offline session succeeds and leaves
// the counter alone.
func (d *Directory) Logout(login string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[login]
	if !ok {
		return apperrors.NotFound("Session")
	}
	if s.Status.Online() {
		d.online--
	}
	s.Status = model.StatusOffline
	s.Handle = ""
	s.LastActivity = d.now()
	return nil
}

func (d *Directory) UpdateStatus(login string, status model.Status) error {
	if !status.Valid() {
		return apperrors.InvalidMessage("status out of range")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[login]
	if !ok {
		return apperrors.NotFound("Session")
	}
	switch {
	case s.Status.Online() && !status.Online():
		d.online--
	case !s.Status.Online() && status.Online():
		d.online++
	}
	s.Status = status
	if !status.Online() {
		s.Handle = ""
	}
	s.LastActivity = d.now()
	return nil
}

// Touch records activity for login. Unknown logins are ignored.
func (d *Directory) Touch(login string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[login]; ok {
		s.LastActivity = d.now()
	}
}

// Find returns a copy of the session.
func (d *Directory) Find(login string) (model.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[login]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

func (d *Directory) Exists(login string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.sessions[login]
	return ok
}

func (d *Directory) IsOnline(login string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[login]
	return ok && s.Status.Online()
}

// OnlineLogins returns every login not offline, sorted.
func (d *Directory) OnlineLogins() []string {
	d.mu.Lock()
	logins := make([]string, 0, d.online)
	for login, s := range d.sessions {
		if s.Status.Online() {
			logins = append(logins, login)
		}
	}
	d.mu.Unlock()

	sort.Strings(logins)
	return logins
}

// Sessions returns copies of all sessions sorted by login.
func (d *Directory) Sessions() []model.Session {
	d.mu.Lock()
	out := make([]model.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, *s)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}

// EvictInactive removes sessions idle for longer than timeout and returns the
// evicted logins.
func (d *Directory) EvictInactive(timeout time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var evicted []string
	for login, s := range d.sessions {
		if now.Sub(s.LastActivity) <= timeout {
			continue
		}
		if s.Status.Online() {
			d.online--
		}
		delete(d.sessions, login)
		evicted = append(evicted, login)
	}
	sort.Strings(evicted)
	return evicted
}

func (d *Directory) OnlineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func (d *Directory) TotalCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *Directory) insertLocked(login, handle string) {
	now := d.now()
	d.sessions[login] = &model.Session{
		Login:        login,
		Status:       model.StatusOnline,
		Handle:       handle,
		LastActivity: now,
		CreatedAt:    now,
	}
	d.online++
}
