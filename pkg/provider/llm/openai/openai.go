// Package openai implements llm.Provider on the official openai-go SDK. Any
// server that speaks the Chat Completions API (vLLM, LM Studio, a LiteLLM
// proxy) can be reached with [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	client oai.Client
	model  shared.ChatModel
}

// Option adds a request option to every call.
type Option func() option.RequestOption

func WithBaseURL(url string) Option {
	return func() option.RequestOption { return option.WithBaseURL(url) }
}

func WithOrganization(org string) Option {
	return func() option.RequestOption { return option.WithOrganization(org) }
}

// WithTimeout bounds each HTTP round trip, retries included.
func WithTimeout(d time.Duration) Option {
	return func() option.RequestOption { return option.WithHTTPClient(&http.Client{Timeout: d}) }
}

// WithMaxRetries overrides the SDK retry count (2).
func WithMaxRetries(n int) Option {
	return func() option.RequestOption { return option.WithMaxRetries(n) }
}

func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if model == "" {
		return nil, errors.New("openai: model is empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		reqOpts = append(reqOpts, o())
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: shared.ChatModel(model)}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: completion returned no choices")
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	out := oai.ChatCompletionNewParams{Model: p.model}
	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		var msg oai.ChatCompletionMessageParamUnion
		switch m.Role {
		case llm.RoleSystem:
			msg = oai.SystemMessage(m.Content)
		case llm.RoleUser:
			msg = oai.UserMessage(m.Content)
		case llm.RoleAssistant:
			msg = oai.AssistantMessage(m.Content)
		default:
			return out, fmt.Errorf("openai: message %d: unknown role %q", i, m.Role)
		}
		out.Messages = append(out.Messages, msg)
	}

	if req.Temperature != 0 {
		out.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSON {
		out.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	return out, nil
}
