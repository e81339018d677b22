package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/hearken/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	sens := 0.9
	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		wantLog     bool
		wantSet     bool
		wantRestart []string
	}{
		{name: "no changes", mutate: func(*config.Config) {}},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:    "sensitivity",
			mutate:  func(c *config.Config) { c.Relevance.Sensitivity = &sens },
			wantSet: true,
		},
		{
			name:    "auto respond",
			mutate:  func(c *config.Config) { c.Intent.AutoRespond = true },
			wantSet: true,
		},
		{
			name:        "listen address",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":1" },
			wantRestart: []string{"server"},
		},
		{
			name:        "rule limit",
			mutate:      func(c *config.Config) { c.Relevance.RepetitionCount = 5 },
			wantRestart: []string{"relevance"},
		},
		{
			name: "providers and storage",
			mutate: func(c *config.Config) {
				c.Providers.STT.Name = "deepgram"
				c.Storage.PostgresDSN = "postgres://x"
			},
			wantRestart: []string{"providers", "storage"},
		},
		{
			name:        "intent threshold",
			mutate:      func(c *config.Config) { c.Intent.QuestionThreshold = 0.8 },
			wantRestart: []string{"intent"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := baseConfig()
			updated := baseConfig()
			tc.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if d.SettingsChanged != tc.wantSet {
				t.Errorf("SettingsChanged = %v, want %v", d.SettingsChanged, tc.wantSet)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
		})
	}
}

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT:       config.ProviderEntry{Name: "whisper"},
			Embedding: config.ProviderEntry{Name: "ecapa"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}
