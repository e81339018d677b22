package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/embedding"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/stt"
	"github.com/MrWong99/hearken/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	vad       map[string]func(ProviderEntry) (vad.Engine, error)
	stt       map[string]func(ProviderEntry) (stt.Transcriber, error)
	embedding map[string]func(ProviderEntry) (embedding.Service, error)
	llm       map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:       make(map[string]func(ProviderEntry) (vad.Engine, error)),
		stt:       make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		embedding: make(map[string]func(ProviderEntry) (embedding.Service, error)),
		llm:       make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterVAD registers a VAD engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterEmbedding registers a speaker-embedding service factory under name.
func (r *Registry) RegisterEmbedding(name string, factory func(ProviderEntry) (embedding.Service, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateEmbedding instantiates an embedding service using the factory registered under entry.Name.
func (r *Registry) CreateEmbedding(entry ProviderEntry) (embedding.Service, error) {
	return create(r, r.embedding, "embedding", entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// Names returns the registered provider names of kind, sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "vad":
		names = keys(r.vad)
	case "stt":
		names = keys(r.stt)
	case "embedding":
		names = keys(r.embedding)
	case "llm":
		names = keys(r.llm)
	}
	sort.Strings(names)
	return names
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
