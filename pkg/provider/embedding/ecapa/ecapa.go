// Package ecapa provides an embedding.Service backed by the ECAPA-TDNN
// speaker-embedding sidecar.
//
// The sidecar reads audio from a path on a filesystem it shares with this
// process. Each call therefore writes the segment as a WAV file into the
// shared directory, asks the sidecar to embed it via POST /extract-embedding
// and removes the file afterwards. Cosine similarity against the centroid is
// computed locally.
//
// Example:
//
//	c, err := ecapa.New("http://localhost:5002", ecapa.WithSharedDir("/data/audio"))
//	res, err := c.ExtractAndCompare(ctx, seg, centroid, embedding.Options{Preprocess: true})
package ecapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
	"github.com/MrWong99/hearken/pkg/vecmath"
)

// DefaultDimensions is the ECAPA-TDNN embedding size.
const DefaultDimensions = 192

var _ embedding.Service = (*Client)(nil)

// Option is a functional option for Client.
type Option func(*Client)

// WithSharedDir sets the directory shared with the sidecar. Defaults to
// os.TempDir().
func WithSharedDir(dir string) Option {
	return func(c *Client) { c.sharedDir = dir }
}

// WithDimensions sets the expected embedding length. Responses of another
// length are rejected. Zero disables the check.
func WithDimensions(n int) Option {
	return func(c *Client) { c.dimensions = n }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the embedding sidecar.
type Client struct {
	baseURL    string
	sharedDir  string
	dimensions int
	httpClient *http.Client
}

// New creates a Client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ecapa: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sharedDir:  os.TempDir(),
		dimensions: DefaultDimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type extractRequest struct {
	AudioPath          string `json:"audio_path"`
	ApplyPreprocessing bool   `json:"apply_preprocessing"`
}

type extractResponse struct {
	Success   bool      `json:"success"`
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
	Error     string    `json:"error"`
}

// ExtractAndCompare writes seg to the shared directory, embeds it and scores
// it against centroid.
func (c *Client) ExtractAndCompare(ctx context.Context, seg audio.Segment, centroid []float32, opts embedding.Options) (embedding.Result, error) {
	start := time.Now()

	path, err := c.writeSegment(seg)
	if err != nil {
		return embedding.Result{}, err
	}
	defer os.Remove(path)

	body, err := json.Marshal(extractRequest{AudioPath: path, ApplyPreprocessing: opts.Preprocess})
	if err != nil {
		return embedding.Result{}, fmt.Errorf("ecapa: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract-embedding", bytes.NewReader(body))
	if err != nil {
		return embedding.Result{}, fmt.Errorf("ecapa: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return embedding.Result{}, fmt.Errorf("ecapa: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return embedding.Result{}, fmt.Errorf("ecapa: read response body: %w", err)
	}
	var out extractResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return embedding.Result{}, fmt.Errorf("ecapa: parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return embedding.Result{}, fmt.Errorf("ecapa: extract failed (HTTP %d): %s", resp.StatusCode, msg)
	}
	if len(out.Embedding) == 0 {
		return embedding.Result{}, errors.New("ecapa: empty embedding")
	}
	if c.dimensions > 0 && len(out.Embedding) != c.dimensions {
		return embedding.Result{}, fmt.Errorf("ecapa: embedding has %d dimensions, want %d", len(out.Embedding), c.dimensions)
	}

	res := embedding.Result{Embedding: out.Embedding}
	if centroid != nil {
		res.Similarity = vecmath.Cosine(out.Embedding, centroid)
	}
	res.ProcessingTime = time.Since(start)
	return res, nil
}

// writeSegment stores seg as a WAV file and returns its path.
func (c *Client) writeSegment(seg audio.Segment) (string, error) {
	f, err := os.CreateTemp(c.sharedDir, "segment-*.wav")
	if err != nil {
		return "", fmt.Errorf("ecapa: create temp file: %w", err)
	}
	if _, err := f.Write(audio.EncodeWAV(seg.Data, seg.SampleRate)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("ecapa: write wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("ecapa: close wav: %w", err)
	}
	return f.Name(), nil
}

// Ping checks GET /health. The sidecar answers 503 while its model is still
// loading.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("ecapa: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ecapa: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ecapa: health: HTTP %d", resp.StatusCode)
	}
	return nil
}
