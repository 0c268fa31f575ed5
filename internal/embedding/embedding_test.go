package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	ctx := context.Background()
	emb := NewDeterministic(64)

	t.Run("identical text yields identical vectors", func(t *testing.T) {
		a, err := emb.Embed(ctx, "refund not received Billing Refunds")
		require.NoError(t, err)
		b, err := emb.Embed(ctx, "refund not received Billing Refunds")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("dimensions honored", func(t *testing.T) {
		assert.Equal(t, 64, emb.Dimensions())
		v, err := emb.Embed(ctx, "anything")
		require.NoError(t, err)
		assert.Len(t, v, 64)
	})

	t.Run("output is unit length", func(t *testing.T) {
		v, err := emb.Embed(ctx, "card declined at terminal")
		require.NoError(t, err)
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	})

	t.Run("case insensitive tokens", func(t *testing.T) {
		a, err := emb.Embed(ctx, "Billing Refunds")
		require.NoError(t, err)
		b, err := emb.Embed(ctx, "billing refunds")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("empty text yields the zero vector", func(t *testing.T) {
		v, err := emb.Embed(ctx, "")
		require.NoError(t, err)
		for _, x := range v {
			assert.Zero(t, x)
		}
	})

	t.Run("non positive dims fall back to default", func(t *testing.T) {
		assert.Equal(t, 64, NewDeterministic(0).Dimensions())
	})
}

func TestProvider(t *testing.T) {
	t.Run("unconfigured provider", func(t *testing.T) {
		p := NewProvider(nil)
		_, err := p.Get()
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("initializes once", func(t *testing.T) {
		calls := 0
		p := NewProvider(func() (Embedder, error) {
			calls++
			return NewDeterministic(8), nil
		})
		first, err := p.Get()
		require.NoError(t, err)
		second, err := p.Get()
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("failed init is retried", func(t *testing.T) {
		calls := 0
		p := NewProvider(func() (Embedder, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("endpoint unreachable")
			}
			return NewDeterministic(8), nil
		})
		_, err := p.Get()
		assert.Error(t, err)
		emb, err := p.Get()
		require.NoError(t, err)
		assert.Equal(t, 8, emb.Dimensions())
		assert.Equal(t, 2, calls)
	})

	t.Run("static provider", func(t *testing.T) {
		emb := NewDeterministic(4)
		p := NewStaticProvider(emb)
		got, err := p.Get()
		require.NoError(t, err)
		assert.Same(t, emb, got)
	})
}
