// Package commands implements the hearken command tree.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/app"
	"github.com/MrWong99/hearken/internal/config"
)

// configPath is the --config flag shared by every command.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "hearken",
	Short: "Always-on listening pipeline for one enrolled speaker",
	Long: `hearken - segments a user's audio stream, verifies the speaker,
transcribes and filters what they say, and turns addressed speech into
commands or memories.

Examples:
  # Run the server
  hearken --config config.yaml serve

  # Inspect and repair a voice profile
  hearken profile health alice
  hearken profile rollback alice
  hearken profile freeze alice --reason "shared room"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(profileCmd)
}

// loadConfig reads --config and installs the configured logger as the
// slog default. The returned level variable lets a reload change verbosity.
func loadConfig(stderr io.Writer) (*config.Config, *slog.LevelVar, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
		}
		return nil, nil, err
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(stderr, cfg.Server.LogFormat, level))
	return cfg, level, nil
}

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
