package app_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/hearken/internal/app"
	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
	embmock "github.com/MrWong99/hearken/pkg/provider/embedding/mock"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	llmmock "github.com/MrWong99/hearken/pkg/provider/llm/mock"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	sttmock "github.com/MrWong99/hearken/pkg/provider/stt/mock"
	"github.com/MrWong99/hearken/pkg/provider/vad"
	vadmock "github.com/MrWong99/hearken/pkg/provider/vad/mock"
)

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltins(reg, 192)

	tests := []struct {
		kind string
		want []string
	}{
		{kind: "vad", want: []string{"energy"}},
		{kind: "stt", want: []string{"deepgram", "whisper", "whisper-native"}},
		{kind: "embedding", want: []string{"ecapa"}},
		{kind: "llm", want: []string{"anthropic", "ollama", "openai"}},
	}
	for _, tc := range tests {
		names := reg.Names(tc.kind)
		for _, w := range tc.want {
			if !slices.Contains(names, w) {
				t.Errorf("%s providers %v missing %q", tc.kind, names, w)
			}
		}
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(&sttmock.Transcriber{Result: stt.Transcript{Text: "primary"}})
	cfg := &config.Config{Providers: config.ProvidersConfig{
		VAD:       config.ProviderEntry{Name: "fake"},
		STT:       config.ProviderEntry{Name: "fake"},
		Embedding: config.ProviderEntry{Name: "fake"},
	}}

	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	t.Cleanup(func() { _ = ps.Close() })

	if ps.LLM != nil {
		t.Error("LLM should be nil when none is configured")
	}
	for _, slot := range []string{"stt", "embedding"} {
		if ps.Breakers[slot] == nil {
			t.Errorf("missing breaker for %s", slot)
		}
	}
	if _, ok := ps.Breakers["llm"]; ok {
		t.Error("unexpected llm breaker")
	}

	got, err := ps.Transcriber.Transcribe(context.Background(), testSegment())
	if err != nil || got.Text != "primary" {
		t.Errorf("Transcribe = %+v, %v", got, err)
	}
}

func TestBuildProviders_WithLLM(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(&sttmock.Transcriber{})
	cfg := &config.Config{Providers: config.ProvidersConfig{
		VAD:       config.ProviderEntry{Name: "fake"},
		STT:       config.ProviderEntry{Name: "fake"},
		Embedding: config.ProviderEntry{Name: "fake"},
		LLM:       config.ProviderEntry{Name: "fake", Model: "tiny"},
	}}

	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.LLM == nil || ps.Breakers["llm"] == nil {
		t.Fatal("guarded LLM was not created")
	}
	resp, err := ps.LLM.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "ok" {
		t.Errorf("Complete = %+v, %v", resp, err)
	}
}

func TestBuildProviders_STTFallbackChain(t *testing.T) {
	t.Parallel()

	reg := fakeRegistry(&sttmock.Transcriber{Err: errors.New("primary down")})
	reg.RegisterSTT("backup", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Result: stt.Transcript{Text: "backup"}}, nil
	})
	cfg := &config.Config{Providers: config.ProvidersConfig{
		VAD:          config.ProviderEntry{Name: "fake"},
		STT:          config.ProviderEntry{Name: "fake"},
		STTFallbacks: []config.ProviderEntry{{Name: "backup"}},
		Embedding:    config.ProviderEntry{Name: "fake"},
	}}

	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	got, err := ps.Transcriber.Transcribe(context.Background(), testSegment())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "backup" {
		t.Errorf("Text = %q, want backup", got.Text)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		prov config.ProvidersConfig
	}{
		{
			name: "unknown vad",
			prov: config.ProvidersConfig{VAD: config.ProviderEntry{Name: "nope"}, STT: config.ProviderEntry{Name: "fake"}, Embedding: config.ProviderEntry{Name: "fake"}},
		},
		{
			name: "unknown stt",
			prov: config.ProvidersConfig{VAD: config.ProviderEntry{Name: "fake"}, STT: config.ProviderEntry{Name: "nope"}, Embedding: config.ProviderEntry{Name: "fake"}},
		},
		{
			name: "unknown fallback",
			prov: config.ProvidersConfig{VAD: config.ProviderEntry{Name: "fake"}, STT: config.ProviderEntry{Name: "fake"}, STTFallbacks: []config.ProviderEntry{{Name: "nope"}}, Embedding: config.ProviderEntry{Name: "fake"}},
		},
		{
			name: "unknown embedding",
			prov: config.ProvidersConfig{VAD: config.ProviderEntry{Name: "fake"}, STT: config.ProviderEntry{Name: "fake"}, Embedding: config.ProviderEntry{Name: "nope"}},
		},
		{
			name: "unknown llm",
			prov: config.ProvidersConfig{VAD: config.ProviderEntry{Name: "fake"}, STT: config.ProviderEntry{Name: "fake"}, Embedding: config.ProviderEntry{Name: "fake"}, LLM: config.ProviderEntry{Name: "nope"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			reg := fakeRegistry(&sttmock.Transcriber{})
			if _, err := app.BuildProviders(&config.Config{Providers: tc.prov}, reg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// ── helpers ──

func fakeRegistry(primary stt.Transcriber) *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterVAD("fake", func(config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Transcriber, error) {
		return primary, nil
	})
	reg.RegisterEmbedding("fake", func(config.ProviderEntry) (embedding.Service, error) {
		return &embmock.Service{Embedding: []float32{1, 0}}, nil
	})
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{Response: &llm.CompletionResponse{Content: "ok"}}, nil
	})
	return reg
}

func testSegment() audio.Segment {
	data := make([]byte, audio.BytesFor(time.Second, audio.SampleRate))
	return audio.Segment{
		ID:         "seg-1",
		Data:       data,
		SampleRate: audio.SampleRate,
		Duration:   time.Second,
		ArrivedAt:  time.Now(),
	}
}
