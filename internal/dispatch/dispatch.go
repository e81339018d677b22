// Package dispatch is where accepted speech leaves the listening pipeline.
//
// A segment that resolves to a command goes to a [CommandExecutor]; one that
// is worth remembering goes to a [MemoryStore]. Both are narrow interfaces so
// that the pipeline does not care whether the command becomes an MCP tool
// call or a log line, or whether memories land in Postgres.
package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// Source records why a command was dispatched.
type Source string

const (
	// SourceWakeWord means the user addressed the assistant by name.
	SourceWakeWord Source = "wake_word"

	// SourceAutoRespond means the intent classifier saw a question and
	// auto-respond was enabled.
	SourceAutoRespond Source = "auto_respond"
)

// Command is one instruction for the assistant.
type Command struct {
	UserID    string
	SegmentID string

	// Text is the instruction with any wake word already stripped.
	Text string

	// Summary is the rolling context summary at dispatch time.
	Summary string

	Source Source
	At     time.Time
}

// Result is what an executor reports back.
type Result struct {
	Output string
}

// CommandExecutor runs commands. Implementations must be safe for
// concurrent use.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// MemoryKind distinguishes full memories from the minimal records kept for
// speech the relevance filter was unsure about.
type MemoryKind string

const (
	MemoryFull    MemoryKind = "full"
	MemoryMinimal MemoryKind = "minimal"
)

// Memory is one remembered utterance.
type Memory struct {
	ID        string
	UserID    string
	SegmentID string
	Text      string
	Summary   string
	Kind      MemoryKind

	// Importance in [0, 1], from the intent classifier. Zero for minimal
	// memories.
	Importance float64

	At time.Time
}

// MemoryStore persists memories. Implementations must be safe for
// concurrent use.
type MemoryStore interface {
	Store(ctx context.Context, m Memory) error
}

// LogExecutor logs commands instead of running them. It is the executor used
// when no MCP server is configured.
type LogExecutor struct{}

// Execute logs cmd and returns an empty result.
func (LogExecutor) Execute(_ context.Context, cmd Command) (Result, error) {
	slog.Info("dispatch: command",
		"user_id", cmd.UserID,
		"segment_id", cmd.SegmentID,
		"source", cmd.Source,
		"text", cmd.Text,
	)
	return Result{}, nil
}

// LogMemory logs memories instead of persisting them.
type LogMemory struct{}

// Store logs m.
func (LogMemory) Store(_ context.Context, m Memory) error {
	slog.Info("dispatch: memory",
		"user_id", m.UserID,
		"segment_id", m.SegmentID,
		"kind", m.Kind,
		"importance", m.Importance,
		"text", m.Text,
	)
	return nil
}

var (
	_ CommandExecutor = LogExecutor{}
	_ MemoryStore     = LogMemory{}
)
