// Package hf embeds text through the HuggingFace Inference API
// (feature-extraction pipeline). Vectors come back L2-normalized; the
// client is the single place that enforces the norm.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/free4inno/intent-hub/internal/distance"
	"github.com/free4inno/intent-hub/internal/domain"
)

const defaultBaseURL = "https://api-inference.huggingface.co"

// Client calls the feature-extraction pipeline for a fixed model.
type Client struct {
	baseURL    string
	token      string
	model      string
	batchSize  int
	timeout    time.Duration
	maxRetries int
	maxElapsed time.Duration
	dim        int
	client     *http.Client
}

// Config configures the HuggingFace embeddings client.
type Config struct {
	Token     string
	Model     string
	Provider  string // optional inference provider routed via router.huggingface.co
	BaseURL   string // overrides Provider routing when set
	BatchSize int
	Timeout   time.Duration
}

// NewClient creates the client and probes the model once to discover the
// vector dimension.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: missing HuggingFace access token", domain.ErrValidation)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: missing embedding model name", domain.ErrValidation)
	}
	base := cfg.BaseURL
	if base == "" {
		if cfg.Provider != "" {
			base = "https://router.huggingface.co/" + cfg.Provider
		} else {
			base = defaultBaseURL
		}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	c := &Client{
		baseURL:    base,
		token:      cfg.Token,
		model:      cfg.Model,
		batchSize:  batch,
		timeout:    t,
		maxRetries: 5,
		maxElapsed: 2 * time.Minute,
		client:     &http.Client{Timeout: t},
	}
	probe, err := c.embedBatch(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, err
	}
	c.dim = len(probe[0])
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "huggingface:" + c.model }

// Dim returns the dimensionality of the produced embedding vectors.
func (c *Client) Dim() int { return c.dim }

// Embed returns one unit vector per input text, in input order. Batches are
// processed atomically: any failing batch fails the whole call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(texts); start += c.batchSize {
		start := start
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)
	body, _ := json.Marshal(map[string]any{
		"inputs":  texts,
		"options": map[string]any{"wait_for_model": true},
	})

	deadline := time.Now().Add(c.maxElapsed)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries && time.Now().Before(deadline); attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
			}
			lastErr = err
			sleep(ctx, retryDelay(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embedding service returned %s", resp.Status)
			sleep(ctx, delay)
			continue
		}

		if resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return nil, fmt.Errorf("%w: embedding request failed: %s", domain.ErrBackendUnavailable, resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			sleep(ctx, retryDelay(attempt))
			continue
		}

		vecs, err := decodeVectors(payload, len(texts))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		for _, v := range vecs {
			distance.NormalizeL2InPlace(v)
		}
		return vecs, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	}
	return nil, fmt.Errorf("%w: embedding service unreachable: %v", domain.ErrBackendUnavailable, lastErr)
}

// decodeVectors accepts either one vector per input ([][]float64) or
// token-level output ([][][]float64), which is mean-pooled.
func decodeVectors(payload []byte, want int) ([][]float64, error) {
	var flat [][]float64
	if err := json.Unmarshal(payload, &flat); err == nil && len(flat) == want && len(flat[0]) > 0 {
		return flat, nil
	}
	var nested [][][]float64
	if err := json.Unmarshal(payload, &nested); err == nil && len(nested) == want {
		out := make([][]float64, want)
		for i, tokens := range nested {
			if len(tokens) == 0 {
				return nil, fmt.Errorf("empty embedding for input %d", i)
			}
			out[i] = distance.Centroid(tokens)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected embedding response shape")
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
