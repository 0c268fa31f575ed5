package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("requires endpoint and key", func(t *testing.T) {
		_, err := NewHTTPEmbedder("", "key", "", 4, 0)
		assert.ErrorIs(t, err, ErrNotConfigured)
		_, err = NewHTTPEmbedder("http://localhost", "", "", 4, 0)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("embeds a single input", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"refund missing"}, req.Input)
			assert.Equal(t, "text-embedding-3-small", req.Model)

			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2, 0.3, 0.4}}},
			})
		}))
		defer srv.Close()

		emb, err := NewHTTPEmbedder(srv.URL, "sk-test", "", 4, time.Second)
		require.NoError(t, err)
		vec, err := emb.Embed(ctx, "refund missing")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
	})

	t.Run("non-200 surfaces as error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		emb, err := NewHTTPEmbedder(srv.URL, "sk-test", "", 4, time.Second)
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "x")
		assert.ErrorContains(t, err, "429")
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2}}},
			})
		}))
		defer srv.Close()

		emb, err := NewHTTPEmbedder(srv.URL, "sk-test", "", 4, time.Second)
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "x")
		assert.ErrorContains(t, err, "expected 4 dimensions")
	})

	t.Run("empty data rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
		}))
		defer srv.Close()

		emb, err := NewHTTPEmbedder(srv.URL, "sk-test", "", 4, time.Second)
		require.NoError(t, err)
		_, err = emb.Embed(ctx, "x")
		assert.ErrorContains(t, err, "no vectors")
	})
}
