// Package mock provides test doubles for the dispatch interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearken/internal/dispatch"
)

// Executor is a mock dispatch.CommandExecutor.
type Executor struct {
	mu sync.Mutex

	// Result is returned by every successful Execute call.
	Result dispatch.Result

	// Err, if non-nil, is returned by every Execute call.
	Err error

	// Commands records every command passed to Execute.
	Commands []dispatch.Command
}

// Execute records cmd and returns Result, Err.
func (e *Executor) Execute(_ context.Context, cmd dispatch.Command) (dispatch.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = append(e.Commands, cmd)
	return e.Result, e.Err
}

// Executed returns a copy of the recorded commands.
func (e *Executor) Executed() []dispatch.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]dispatch.Command(nil), e.Commands...)
}

// Memories is a mock dispatch.MemoryStore.
type Memories struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Store call.
	Err error

	// Stored records every memory passed to Store.
	Stored []dispatch.Memory
}

// Store records m and returns Err.
func (m *Memories) Store(_ context.Context, mem dispatch.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stored = append(m.Stored, mem)
	return m.Err
}

// All returns a copy of the recorded memories.
func (m *Memories) All() []dispatch.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatch.Memory(nil), m.Stored...)
}

var (
	_ dispatch.CommandExecutor = (*Executor)(nil)
	_ dispatch.MemoryStore     = (*Memories)(nil)
)
