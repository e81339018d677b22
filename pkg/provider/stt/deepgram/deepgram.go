// Package deepgram provides a Transcriber backed by Deepgram's live
// transcription API.
//
// Each Transcribe call opens a WebSocket to wss://api.deepgram.com/v1/listen,
// streams the segment in 100ms frames, sends CloseStream and collects the
// final results until the server closes the connection. Interim results are
// requested off: only committed text matters for a finished segment.
//
// Usage:
//
//	d, err := deepgram.New(apiKey, deepgram.WithModel("nova-3"))
//	t, err := d.Transcribe(ctx, seg)
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	frameDuration = 100 * time.Millisecond
)

var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the Deepgram model (e.g. "nova-3", "nova-2"). Defaults to
// "nova-3".
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLanguage sets the recognition language. Defaults to "en". "multi"
// enables Deepgram's multilingual mode.
func WithLanguage(language string) Option {
	return func(c *Client) { c.language = language }
}

// WithEndpoint overrides the WebSocket endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// Client transcribes segments over Deepgram's streaming API.
type Client struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	c := &Client{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// buildURL returns the WebSocket URL with query parameters for rate.
func (c *Client) buildURL(rate int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	if rate <= 0 {
		rate = audio.SampleRate
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe streams seg and joins every final result.
func (c *Client) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	if len(seg.Data) == 0 {
		return stt.Transcript{Language: c.language, Confidence: 1}, nil
	}
	wsURL, err := c.buildURL(seg.SampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.stream(ctx, conn, seg)
	}()

	var (
		parts   []string
		confSum float64
		lang    = c.language
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctx.Err())
			}
			// Deepgram closes the socket once the final metadata is sent;
			// anything collected so far is the whole transcript.
			if len(parts) > 0 {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		r, ok := parseResponse(msg)
		if !ok {
			continue
		}
		if r.metadata {
			break
		}
		if !r.final || r.text == "" {
			continue
		}
		parts = append(parts, r.text)
		confSum += r.confidence
		if r.language != "" {
			lang = r.language
		}
	}

	if err := <-writeErr; err != nil && ctx.Err() == nil {
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "segment done")

	conf := 1.0
	if len(parts) > 0 {
		conf = confSum / float64(len(parts))
	}
	return stt.Transcript{
		Text:       strings.Join(parts, " "),
		Confidence: conf,
		Language:   lang,
	}, nil
}

// stream writes the segment in frames and asks the server to flush.
func (c *Client) stream(ctx context.Context, conn *websocket.Conn, seg audio.Segment) error {
	frame := audio.BytesFor(frameDuration, seg.SampleRate)
	for off := 0; off < len(seg.Data); off += frame {
		end := min(off+frame, len(seg.Data))
		if err := conn.Write(ctx, websocket.MessageBinary, seg.Data[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: write CloseStream: %w", err)
	}
	return nil
}

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence float64  `json:"confidence"`
			Languages  []string `json:"languages"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	text       string
	confidence float64
	language   string
	final      bool
	metadata   bool
}

// parseResponse decodes one server message. Unknown or malformed messages
// are ignored.
func parseResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	switch resp.Type {
	case "Metadata":
		return result{metadata: true}, true
	case "Results":
	default:
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	r := result{
		text:       strings.TrimSpace(alt.Transcript),
		confidence: alt.Confidence,
		final:      resp.IsFinal,
	}
	if len(alt.Languages) > 0 {
		r.language = alt.Languages[0]
	}
	return r, true
}
