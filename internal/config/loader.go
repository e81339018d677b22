package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/hearken/internal/dispatch/mcpexec"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":       {"energy"},
	"stt":       {"whisper", "whisper-native", "deepgram"},
	"embedding": {"ecapa"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: json, text", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embedding", cfg.Providers.Embedding.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.Embedding.Name == "" {
		errs = append(errs, errors.New("providers.embedding.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; stage-2 relevance fails closed and intent classification is off")
		if cfg.Intent.Enabled {
			errs = append(errs, errors.New("intent.enabled requires providers.llm"))
		}
	}

	// Listening
	l := cfg.Listening
	if l.MinSegment > 0 && l.MaxSegment > 0 && l.MinSegment >= l.MaxSegment {
		errs = append(errs, fmt.Errorf("listening.min_segment %s must be below max_segment %s", l.MinSegment, l.MaxSegment))
	}
	if l.EnergyThreshold < 0 || l.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("listening.energy_threshold %.3f is out of range [0, 1]", l.EnergyThreshold))
	}
	errs = appendUnit(errs, "listening.negative_threshold", l.NegativeThreshold)
	if l.ContextTokens < 0 {
		errs = append(errs, fmt.Errorf("listening.context_tokens %d must not be negative", l.ContextTokens))
	}

	// Speaker
	errs = appendUnit(errs, "speaker.threshold", cfg.Speaker.Threshold)
	errs = appendUnit(errs, "speaker.contrastive_margin", cfg.Speaker.ContrastiveMargin)

	// Relevance
	if s := cfg.Relevance.Sensitivity; s != nil && (*s < 0 || *s > 1) {
		errs = append(errs, fmt.Errorf("relevance.sensitivity %.2f is out of range [0, 1]", *s))
	}

	// Wake word
	for i, p := range cfg.WakeWord.Phrases {
		if p == "" {
			errs = append(errs, fmt.Errorf("wake_word.phrases[%d] is empty", i))
		}
	}
	errs = appendUnit(errs, "wake_word.phonetic_threshold", cfg.WakeWord.PhoneticThreshold)

	// Intent
	errs = appendUnit(errs, "intent.question_threshold", cfg.Intent.QuestionThreshold)
	errs = appendUnit(errs, "intent.importance_threshold", cfg.Intent.ImportanceThreshold)
	if cfg.Intent.AutoRespond && !cfg.Intent.Enabled {
		slog.Warn("intent.auto_respond has no effect while intent.enabled is false")
	}

	// Learner
	errs = appendUnit(errs, "learner.admission_threshold", cfg.Learner.AdmissionThreshold)
	errs = appendUnit(errs, "learner.negative_threshold", cfg.Learner.NegativeThreshold)
	errs = appendUnit(errs, "learner.freeze_threshold", cfg.Learner.FreezeThreshold)

	// Storage
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions %d must be positive", cfg.Storage.EmbeddingDimensions))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; profiles are kept in memory and memories are only logged")
	}

	// Dispatch
	if srv := cfg.Dispatch.MCP; srv != nil {
		const prefix = "dispatch.mcp"
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Tool == "" {
			errs = append(errs, fmt.Errorf("%s.tool is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcpexec.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcpexec.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// appendUnit appends an error when v lies outside [0, 1]. Zero means unset.
func appendUnit(errs []error, field string, v float64) []error {
	if v < 0 || v > 1 {
		return append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", field, v))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
