package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

func TestParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3.2"}
	tests := []struct {
		name       string
		req        llm.CompletionRequest
		wantSystem string
		wantMsgs   int
		wantTemp   bool
		wantMax    bool
	}{
		{
			name:     "bare user turn",
			req:      llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}},
			wantMsgs: 1,
		},
		{
			name: "system and limits",
			req: llm.CompletionRequest{
				SystemPrompt: "be terse",
				Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "yo"}},
				Temperature:  0.2,
				MaxTokens:    64,
			},
			wantSystem: "be terse",
			wantMsgs:   3,
			wantTemp:   true,
			wantMax:    true,
		},
		{
			name:       "json mode without system prompt",
			req:        llm.CompletionRequest{JSON: true, Messages: []llm.Message{{Role: llm.RoleUser, Content: "classify"}}},
			wantSystem: jsonHint,
			wantMsgs:   2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := p.params(tc.req)
			if got.Model != "llama3.2" {
				t.Errorf("model = %q", got.Model)
			}
			if len(got.Messages) != tc.wantMsgs {
				t.Fatalf("messages = %d, want %d", len(got.Messages), tc.wantMsgs)
			}
			if tc.wantSystem != "" {
				if got.Messages[0].Role != anyllmlib.RoleSystem || got.Messages[0].ContentString() != tc.wantSystem {
					t.Errorf("first message = %+v, want system %q", got.Messages[0], tc.wantSystem)
				}
			}
			last := got.Messages[len(got.Messages)-1]
			if want := tc.req.Messages[len(tc.req.Messages)-1]; last.ContentString() != want.Content {
				t.Errorf("last message = %q, want %q", last.ContentString(), want.Content)
			}
			if (got.Temperature != nil) != tc.wantTemp || (got.MaxTokens != nil) != tc.wantMax {
				t.Errorf("temperature %v max %v", got.Temperature, got.MaxTokens)
			}
		})
	}
}

func TestParams_JSONHintAppended(t *testing.T) {
	t.Parallel()

	got := (&Provider{model: "m"}).params(llm.CompletionRequest{SystemPrompt: "Decide relevance.", JSON: true})
	if s := got.Messages[0].ContentString(); !strings.HasPrefix(s, "Decide relevance.") || !strings.HasSuffix(s, jsonHint) {
		t.Errorf("system = %q", s)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend, model, wantErr string
	}{
		{"", "m", "backend name is empty"},
		{"ollama", "", "model is empty"},
		{"skynet", "m", "unsupported provider"},
	}
	for _, tc := range tests {
		_, err := New(tc.backend, tc.model)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("New(%q, %q) err = %v, want %q", tc.backend, tc.model, err, tc.wantErr)
		}
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	got := Supported()
	if !slices.IsSorted(got) || len(got) != len(backends) {
		t.Errorf("Supported() = %v", got)
	}
	for _, name := range []string{"anthropic", "ollama", "llamacpp"} {
		if !slices.Contains(got, name) {
			t.Errorf("%s missing", name)
		}
	}
}
