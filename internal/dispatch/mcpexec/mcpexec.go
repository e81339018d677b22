// Package mcpexec runs dispatched commands as MCP tool calls.
//
// One Executor holds one client session to one MCP server and calls a single
// configured tool for every command. The tool receives the command text, the
// user id, the context summary and the dispatch source as string arguments;
// its text content becomes the command result.
package mcpexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/hearken/internal/dispatch"
)

// Transport selects how the MCP server is reached.
type Transport string

const (
	// TransportStdio spawns the server as a subprocess.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP uses the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Config describes the server and the tool to call.
type Config struct {
	// Name identifies the server in logs and errors.
	Name string

	Transport Transport

	// Command is the executable and arguments for stdio servers.
	Command string

	// Env holds extra environment variables for stdio servers.
	Env map[string]string

	// URL is the endpoint for streamable-http servers.
	URL string

	// Tool is the name of the tool that receives commands.
	Tool string
}

// Executor is a [dispatch.CommandExecutor] backed by an MCP client session.
type Executor struct {
	name    string
	tool    string
	session *mcpsdk.ClientSession
}

var _ dispatch.CommandExecutor = (*Executor)(nil)

// New connects to the server described by cfg and checks that it offers
// cfg.Tool.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	if cfg.Name == "" {
		return nil, errors.New("mcpexec: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return nil, fmt.Errorf("mcpexec: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcpexec: stdio server %q requires a non-empty command", cfg.Name)
		}
		// The subprocess outlives ctx, which only bounds the handshake.
		cmd := exec.Command(executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcpexec: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}
	return Dial(ctx, cfg.Name, cfg.Tool, transport)
}

// Dial connects over an already-built transport. It is what [New] uses and
// lets tests supply an in-memory transport.
func Dial(ctx context.Context, name, tool string, transport mcpsdk.Transport) (*Executor, error) {
	if tool == "" {
		return nil, fmt.Errorf("mcpexec: server %q: tool name is required", name)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "hearken", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpexec: connect to server %q: %w", name, err)
	}

	found := false
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcpexec: list tools for server %q: %w", name, err)
		}
		if t.Name == tool {
			found = true
		}
	}
	if !found {
		_ = session.Close()
		return nil, fmt.Errorf("mcpexec: server %q does not offer tool %q", name, tool)
	}
	return &Executor{name: name, tool: tool, session: session}, nil
}

// Execute calls the configured tool with cmd. A tool-level error (IsError)
// is returned as an error carrying the tool's text.
func (e *Executor) Execute(ctx context.Context, cmd dispatch.Command) (dispatch.Result, error) {
	res, err := e.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: e.tool,
		Arguments: map[string]any{
			"text":    cmd.Text,
			"user_id": cmd.UserID,
			"summary": cmd.Summary,
			"source":  string(cmd.Source),
		},
	})
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("mcpexec: call %q on %q: %w", e.tool, e.name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return dispatch.Result{}, fmt.Errorf("mcpexec: tool %q failed: %s", e.tool, sb.String())
	}
	return dispatch.Result{Output: sb.String()}, nil
}

// Close ends the client session.
func (e *Executor) Close() error {
	if err := e.session.Close(); err != nil {
		return fmt.Errorf("mcpexec: close %q: %w", e.name, err)
	}
	return nil
}

func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
