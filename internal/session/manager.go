// Package session keeps one listening session per user.
//
// The [Manager] is the registry the transports talk to: the websocket
// ingest starts a session when a user connects and stops it on disconnect,
// and the config watcher pushes preference changes to every running
// session. All exported methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/hearken/internal/listening"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/internal/relevance"
)

var (
	// ErrAlreadyRunning is returned by Start when the user has a session.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrNotRunning is returned when the user has no session.
	ErrNotRunning = errors.New("session: not running")
)

// Info describes a running session.
type Info struct {
	UserID    string
	StartedAt time.Time
	State     listening.State
}

type entry struct {
	sess      *listening.Session
	startedAt time.Time
}

// Option configures a [Manager].
type Option func(*Manager)

// WithSettings sets the settings new sessions start with.
func WithSettings(s listening.Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithSessionOptions adds options passed to every new session.
func WithSessionOptions(opts ...listening.Option) Option {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// WithMetrics overrides the metrics used for the active-session gauge.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// Manager owns the listening sessions, keyed by user id.
type Manager struct {
	deps        listening.Deps
	cfg         listening.Config
	sessionOpts []listening.Option
	metrics     *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*entry
	settings listening.Settings
}

// NewManager returns a manager that builds sessions from deps and cfg.
func NewManager(deps listening.Deps, cfg listening.Config, opts ...Option) *Manager {
	m := &Manager{
		deps:     deps,
		cfg:      cfg,
		sessions: make(map[string]*entry),
	}
	m.settings.Preferences = relevance.DefaultPreferences()
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = deps.Metrics
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Start creates and registers a session for userID. A user whose previous
// session failed may start again once it has been stopped.
func (m *Manager) Start(ctx context.Context, userID string) (*listening.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; ok {
		return nil, fmt.Errorf("%w: user %q", ErrAlreadyRunning, userID)
	}

	opts := append([]listening.Option{listening.WithSettings(m.settings)}, m.sessionOpts...)
	sess, err := listening.NewSession(userID, m.deps, m.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("session: start %q: %w", userID, err)
	}
	m.sessions[userID] = &entry{sess: sess, startedAt: time.Now().UTC()}
	m.metrics.ActiveSessions.Add(ctx, 1)

	slog.Info("session started", "user_id", userID, "active", len(m.sessions))
	return sess, nil
}

// Get returns the running session of userID.
func (m *Manager) Get(userID string) (*listening.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Stop stops and unregisters the session of userID. It waits for in-flight
// processing; the result of an in-flight segment is dropped.
func (m *Manager) Stop(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotRunning, userID)
	}
	m.stop(ctx, userID, e)
	return nil
}

func (m *Manager) stop(ctx context.Context, userID string, e *entry) {
	e.sess.Stop()
	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session stopped", "user_id", userID, "uptime", time.Since(e.startedAt).Round(time.Second))
}

// StopAll stops every session concurrently and returns when all are done or
// ctx expires.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for userID, e := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.stop(ctx, userID, e)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: stop all: %w", ctx.Err())
	}
}

// UpdatePreferences replaces the settings of every running session and of
// sessions started later.
func (m *Manager) UpdatePreferences(s listening.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	for _, e := range m.sessions {
		e.sess.UpdateSettings(s)
	}
	slog.Info("session: preferences updated",
		"sessions", len(m.sessions),
		"sensitivity", s.Preferences.Sensitivity,
		"auto_respond", s.AutoRespond,
	)
}

// UpdateUserSettings replaces the settings of one running session.
func (m *Manager) UpdateUserSettings(userID string, s listening.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return fmt.Errorf("%w: user %q", ErrNotRunning, userID)
	}
	e.sess.UpdateSettings(s)
	return nil
}

// List returns the running sessions ordered by user id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.sessions))
	for id, e := range m.sessions {
		out = append(out, Info{UserID: id, StartedAt: e.startedAt, State: e.sess.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
