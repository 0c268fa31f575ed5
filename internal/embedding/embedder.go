// Package embedding provides the embedding-provider contract used by the
// dedup pipeline, an OpenAI-compatible HTTP client, and a deterministic
// embedder for tests and offline development.
package embedding

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConfigured means no provider is configured; callers surface it as
// service-unavailable and must not persist the ticket.
var ErrNotConfigured = errors.New("embedding: provider not configured")

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Provider is the process-wide lazily initialized embedder. Construction
// happens on first use under a mutex; once built, the embedder is stateless
// and safe for concurrent calls.
type Provider struct {
	mu   sync.Mutex
	emb  Embedder
	init func() (Embedder, error)
}

// NewProvider wraps an initializer that will run on first Get.
func NewProvider(init func() (Embedder, error)) *Provider {
	return &Provider{init: init}
}

// NewStaticProvider wraps an already-built embedder, used by tests.
func NewStaticProvider(e Embedder) *Provider {
	return &Provider{emb: e}
}

// Get returns the shared embedder, initializing it if needed. A failed
// initialization is returned to the caller and retried on the next Get.
func (p *Provider) Get() (Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emb != nil {
		return p.emb, nil
	}
	if p.init == nil {
		return nil, ErrNotConfigured
	}
	emb, err := p.init()
	if err != nil {
		return nil, err
	}
	p.emb = emb
	return p.emb, nil
}
