package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/health"
	"github.com/MrWong99/hearken/internal/resilience"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
	"github.com/MrWong99/hearken/pkg/provider/embedding/ecapa"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/llm/anyllm"
	"github.com/MrWong99/hearken/pkg/provider/llm/openai"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/stt/deepgram"
	"github.com/MrWong99/hearken/pkg/provider/stt/whisper"
	"github.com/MrWong99/hearken/pkg/provider/vad"
	"github.com/MrWong99/hearken/pkg/provider/vad/energy"
)

// Providers holds one value per provider slot. LLM is nil when none is
// configured; the other slots are required.
type Providers struct {
	VAD         vad.Engine
	Transcriber stt.Transcriber
	Embedding   embedding.Service
	LLM         llm.Provider

	// EmbeddingPinger is set when the embedding backend can report its own
	// health. It backs the readiness check.
	EmbeddingPinger health.Pinger

	// Breakers guard the backends above, keyed by slot.
	Breakers map[string]*resilience.CircuitBreaker

	closers []io.Closer
}

// Close releases providers that hold native resources.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// RegisterBuiltins wires every built-in provider factory into reg.
// dims is the expected speaker-embedding length.
func RegisterBuiltins(reg *config.Registry, dims int) {
	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Speaker embedding ─────────────────────────────────────────────────────
	reg.RegisterEmbedding("ecapa", func(entry config.ProviderEntry) (embedding.Service, error) {
		opts := []ecapa.Option{ecapa.WithDimensions(dims)}
		if dir := optString(entry.Options, "shared_dir"); dir != "" {
			opts = append(opts, ecapa.WithSharedDir(dir))
		}
		return ecapa.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if s := optString(entry.Options, "timeout"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("openai: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// "openai" stays on the official SDK above.
	for _, name := range anyllm.Supported() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	for _, kind := range []string{"vad", "stt", "embedding", "llm"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// BuildProviders instantiates every provider named in cfg and puts the
// external ones behind circuit breakers. Transcribers listed in
// providers.stt_fallbacks are chained after the primary.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{Breakers: make(map[string]*resilience.CircuitBreaker)}

	v, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: create vad %q: %w", cfg.Providers.VAD.Name, err)
	}
	ps.VAD = v

	if err := ps.buildTranscriber(cfg, reg); err != nil {
		_ = ps.Close()
		return nil, err
	}

	emb, err := reg.CreateEmbedding(cfg.Providers.Embedding)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("app: create embedding %q: %w", cfg.Providers.Embedding.Name, err)
	}
	if p, ok := emb.(health.Pinger); ok {
		ps.EmbeddingPinger = p
	}
	guarded := resilience.GuardEmbedding(emb, resilience.CircuitBreakerConfig{Name: "embedding/" + cfg.Providers.Embedding.Name})
	ps.Embedding = guarded
	ps.Breakers["embedding"] = guarded.Breaker()
	slog.Info("provider created", "kind", "embedding", "name", cfg.Providers.Embedding.Name)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("app: create llm %q: %w", name, err)
		}
		g := resilience.GuardLLM(p, resilience.CircuitBreakerConfig{Name: "llm/" + name})
		ps.LLM = g
		ps.Breakers["llm"] = g.Breaker()
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}
	return ps, nil
}

func (ps *Providers) buildTranscriber(cfg *config.Config, reg *config.Registry) error {
	create := func(entry config.ProviderEntry) (stt.Transcriber, error) {
		t, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create stt %q: %w", entry.Name, err)
		}
		if c, ok := t.(io.Closer); ok {
			ps.closers = append(ps.closers, c)
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
		return t, nil
	}

	primary, err := create(cfg.Providers.STT)
	if err != nil {
		return err
	}
	if len(cfg.Providers.STTFallbacks) == 0 {
		g := resilience.GuardTranscriber(primary, resilience.CircuitBreakerConfig{Name: "stt/" + cfg.Providers.STT.Name})
		ps.Transcriber = g
		ps.Breakers["stt"] = g.Breaker()
		return nil
	}

	fb := resilience.NewSTTFallback(cfg.Providers.STT.Name, primary, resilience.CircuitBreakerConfig{})
	for _, entry := range cfg.Providers.STTFallbacks {
		t, err := create(entry)
		if err != nil {
			return err
		}
		fb.AddFallback(entry.Name, t)
	}
	ps.Transcriber = fb
	slog.Info("stt fallback chain", "backends", fb.Backends())
	return nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
