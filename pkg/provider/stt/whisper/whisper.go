// Package whisper provides whisper.cpp-backed transcribers.
//
// [Client] talks to a running whisper-server over its REST API
// (POST /inference). [Native] links whisper.cpp through the cgo bindings
// and runs inference in-process.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	t, err := c.Transcribe(ctx, seg)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

const defaultLanguage = "en"

var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the server. When empty
// the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
// "auto" asks the server to detect the language.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithHTTPClient overrides the HTTP client. The default has a 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client transcribes segments against a whisper.cpp HTTP server.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Client for the server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// inferenceResponse covers both the plain json and verbose_json formats.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe encodes seg as WAV and posts it to /inference.
func (c *Client) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	if len(seg.Data) == 0 {
		return stt.Transcript{Language: c.language, Confidence: 1}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(seg.Data, seg.SampleRate)); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	if c.model != "" {
		fields["model"] = c.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	lang := result.Language
	if lang == "" {
		lang = c.language
	}
	return stt.Transcript{
		Text:       strings.TrimSpace(result.Text),
		Confidence: segmentConfidence(result),
		Language:   lang,
	}, nil
}

// segmentConfidence turns the mean per-segment log probability into a
// probability. Responses without log probabilities count as certain.
func segmentConfidence(r inferenceResponse) float64 {
	var sum float64
	var n int
	for _, s := range r.Segments {
		if s.AvgLogprob != nil {
			sum += *s.AvgLogprob
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return math.Min(1, math.Exp(sum/float64(n)))
}
