package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/app"
	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/observe"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest and ops server",
	Long: `Run the websocket ingest endpoint and the health, readiness and metrics
endpoints. The config file is polled; log level and filter preferences
apply to running sessions, other sections need a restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, level, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, level)
	},
}

func serve(parent context.Context, cfg *config.Config, level *slog.LevelVar) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("hearken starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	app.RegisterBuiltins(reg, cfg.Storage.EmbeddingDimensions)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return err
	}
	logStartupSummary(cfg)

	a, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		_ = providers.Close()
		return err
	}

	watcher, err := config.NewWatcher(configPath, a.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go watcher.Run(ctx)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := a.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

func logStartupSummary(cfg *config.Config) {
	p := cfg.Providers
	fallbacks := make([]string, len(p.STTFallbacks))
	for i, f := range p.STTFallbacks {
		fallbacks[i] = f.Name
	}
	slog.Info("startup summary",
		"vad", p.VAD.Name,
		"stt", p.STT.Name,
		"stt_fallbacks", fallbacks,
		"embedding", p.Embedding.Name,
		"llm", orDisabled(p.LLM.Name),
		"wake_words", len(cfg.WakeWord.Phrases),
		"learner", cfg.Learner.Enabled,
		"postgres", cfg.Storage.PostgresDSN != "",
		"mcp", cfg.Dispatch.MCP != nil,
	)
}

func orDisabled(name string) string {
	if name == "" {
		return "(disabled)"
	}
	return name
}
