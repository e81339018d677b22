// Package app wires all Hearken subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the ops and ingest HTTP endpoints until the context
// ends, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithProfileStore,
// WithCommandExecutor, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/dispatch"
	"github.com/MrWong99/hearken/internal/dispatch/mcpexec"
	dispatchpg "github.com/MrWong99/hearken/internal/dispatch/postgres"
	"github.com/MrWong99/hearken/internal/health"
	"github.com/MrWong99/hearken/internal/intent"
	"github.com/MrWong99/hearken/internal/listening"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/internal/profile"
	profilepg "github.com/MrWong99/hearken/internal/profile/postgres"
	"github.com/MrWong99/hearken/internal/relevance"
	"github.com/MrWong99/hearken/internal/resilience"
	"github.com/MrWong99/hearken/internal/session"
	"github.com/MrWong99/hearken/internal/speaker"
	"github.com/MrWong99/hearken/internal/wakeword"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	profiles profile.Store
	memories dispatch.MemoryStore
	commands dispatch.CommandExecutor
	learner  *profile.Learner
	runner   *listening.Runner
	events   *listening.UserFanOut
	manager  *session.Manager
	checkers []health.Checker
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProfileStore injects a profile store instead of creating one from config.
func WithProfileStore(s profile.Store) Option {
	return func(a *App) { a.profiles = s }
}

// WithMemoryStore injects a memory store instead of creating one from config.
func WithMemoryStore(m dispatch.MemoryStore) Option {
	return func(a *App) { a.memories = m }
}

// WithCommandExecutor injects a command executor instead of dialling the
// configured MCP server.
func WithCommandExecutor(e dispatch.CommandExecutor) Option {
	return func(a *App) { a.commands = e }
}

// WithMetrics overrides the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the process logger so
// config reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] or from a test.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		events:    listening.NewUserFanOut(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Command dispatch ──────────────────────────────────────────────
	if err := a.initDispatch(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init dispatch: %w", err)
	}

	// ── 3. Pipeline + sessions ───────────────────────────────────────────
	deps, err := a.pipeline()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.manager = session.NewManager(deps, cfg.Session(),
		session.WithSettings(cfg.Settings()),
		session.WithMetrics(a.metrics),
	)

	// ── 4. Readiness ─────────────────────────────────────────────────────
	if p := providers.EmbeddingPinger; p != nil {
		a.checkers = append(a.checkers, health.Ping("embedding", p))
	}
	for slot, b := range providers.Breakers {
		a.checkers = append(a.checkers, health.Checker{Name: "breaker/" + slot, Check: resilience.CheckClosed(b)})
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage opens PostgreSQL when a DSN is configured. Without one,
// profiles live in memory and memories are logged.
func (a *App) initStorage(ctx context.Context) error {
	if a.profiles != nil && a.memories != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		if a.profiles == nil {
			a.profiles = profile.NewMemStore()
		}
		if a.memories == nil {
			a.memories = dispatch.LogMemory{}
		}
		return nil
	}

	store, err := profilepg.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.checkers = append(a.checkers, health.Ping("postgres", store.Pool()))

	if a.profiles == nil {
		a.profiles = store
	}
	if a.memories == nil {
		mem, err := dispatchpg.NewStore(ctx, store.Pool())
		if err != nil {
			return err
		}
		a.memories = mem
	}
	slog.Info("postgres storage ready", "embedding_dimensions", a.cfg.Storage.EmbeddingDimensions)
	return nil
}

// initDispatch connects the MCP tool server, or falls back to logging.
func (a *App) initDispatch(ctx context.Context) error {
	if a.commands != nil {
		return nil
	}
	srv := a.cfg.Dispatch.MCP
	if srv == nil {
		a.commands = dispatch.LogExecutor{}
		return nil
	}
	exec, err := mcpexec.New(ctx, srv.Executor())
	if err != nil {
		return fmt.Errorf("connect mcp server %q: %w", srv.Name, err)
	}
	a.commands = exec
	a.closers = append(a.closers, exec.Close)
	slog.Info("commands dispatch to MCP", "server", srv.Name, "tool", srv.Tool)
	return nil
}

// pipeline builds the shared dependencies of every listening session.
func (a *App) pipeline() (listening.Deps, error) {
	cfg, ps := a.cfg, a.providers

	a.learner = profile.NewLearner(a.profiles, cfg.Learner.Profile())
	a.runner = listening.NewRunner(cfg.Listening.Timeouts.Learner)

	deps := listening.Deps{
		VAD:         ps.VAD,
		Verifier:    speaker.New(ps.Embedding, a.profiles, cfg.Verifier(), speaker.WithNegatives(a.profiles)),
		Transcriber: ps.Transcriber,
		Runner:      a.runner,
		Commands:    a.commands,
		Memories:    a.memories,
		Sink:        listening.MultiSink{listening.LogSink{}, a.events},
		Metrics:     a.metrics,
	}
	if cfg.Learner.Enabled {
		deps.Learner = a.learner
	}

	var filterOpts []relevance.Option
	if phrases := cfg.WakeWord.Phrases; len(phrases) > 0 {
		var wopts []wakeword.Option
		if len(cfg.WakeWord.Variants) > 0 {
			wopts = append(wopts, wakeword.WithVariants(cfg.WakeWord.Variants...))
		}
		if t := cfg.WakeWord.PhoneticThreshold; t > 0 {
			wopts = append(wopts, wakeword.WithPhoneticThreshold(t))
		}
		wake := wakeword.New(phrases, wopts...)
		deps.WakeWords = wake
		filterOpts = append(filterOpts, relevance.WithWakeWords(wake))
	}

	// Without an LLM the filter fails closed on everything Stage 1 cannot
	// decide, and the context window summarises verbatim.
	var classifier relevance.Classifier
	if ps.LLM != nil {
		classifier = relevance.NewLLMClassifier(ps.LLM)
		deps.Summariser = listening.NewLLMSummariser(ps.LLM)
		if cfg.Intent.Enabled {
			deps.Intent = intent.NewLLMClassifier(ps.LLM)
		}
	}
	deps.Relevance = relevance.NewFilter(classifier, cfg.Filter(), filterOpts...)

	if enc := cfg.Listening.Tokenizer; enc != "" && enc != "heuristic" {
		counter, err := listening.NewTiktokenCounter(enc)
		if err != nil {
			return listening.Deps{}, err
		}
		deps.Counter = counter
	}
	return deps, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session registry.
func (a *App) Sessions() *session.Manager { return a.manager }

// Learner returns the profile learner, for maintenance commands.
func (a *App) Learner() *profile.Learner { return a.learner }

// Events returns the per-user event broadcaster every session emits to.
func (a *App) Events() *listening.UserFanOut { return a.events }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig pushes the hot-reloadable parts of next to the running
// server. Sections that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SettingsChanged {
		a.manager.UpdatePreferences(next.Settings())
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config level to its slog counterpart.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP endpoints and blocks until ctx is cancelled or the
// server fails. It returns ctx.Err() on a normal stop.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting connections, stops every session, drains the
// learner tasks and closes the backends. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.manager.Active(), "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}
		if err := a.manager.StopAll(ctx); err != nil {
			shutdownErr = err
			return
		}
		if err := a.runner.Shutdown(ctx); err != nil {
			slog.Warn("learner tasks abandoned", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		if err := a.providers.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
