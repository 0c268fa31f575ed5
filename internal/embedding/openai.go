package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	dims     int
	client   *http.Client
}

// NewHTTPEmbedder builds a client for an OpenAI-compatible provider.
// Returns ErrNotConfigured when endpoint or key is missing.
func NewHTTPEmbedder(endpoint, apiKey, model string, dims int, timeout time.Duration) (*HTTPEmbedder, error) {
	if endpoint == "" || apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.dims }

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a single embedding. Provider failures are returned as
// plain errors; the core does not retry internally.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: e.model, Input: []string{text}, Dimensions: e.dims})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: provider call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("embedding: provider returned %d: %s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding: provider returned no vectors")
	}
	vec := out.Data[0].Embedding
	if e.dims > 0 && len(vec) != e.dims {
		return nil, fmt.Errorf("embedding: expected %d dimensions, got %d", e.dims, len(vec))
	}
	return vec, nil
}
