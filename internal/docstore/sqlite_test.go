package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLContainer {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store.Container("tickets", testOptions())
}

func TestSQLiteContainer(t *testing.T) {
	ctx := context.Background()
	c := openTestSQLite(t)

	t.Run("create and point read", func(t *testing.T) {
		doc, err := c.Create(ctx, &Document{ID: "t1", PK: "2026-08", Body: body(t, map[string]interface{}{"ticket_number": "INC-1", "status": "open"})})
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ETag)

		got, err := c.PointRead(ctx, "t1", "2026-08")
		require.NoError(t, err)
		assert.Equal(t, doc.ETag, got.ETag)
		assert.JSONEq(t, string(doc.Body), string(got.Body))
	})

	t.Run("unique ticket number per partition", func(t *testing.T) {
		_, err := c.Create(ctx, &Document{ID: "t2", PK: "2026-08", Body: body(t, map[string]interface{}{"ticket_number": "INC-1"})})
		assert.ErrorIs(t, err, ErrUniqueViolation)

		_, err = c.Create(ctx, &Document{ID: "t3", PK: "2026-07", Body: body(t, map[string]interface{}{"ticket_number": "INC-1"})})
		assert.NoError(t, err)
	})

	t.Run("etag guarded replace", func(t *testing.T) {
		doc, err := c.Create(ctx, &Document{ID: "r1", PK: "2026-08", Body: body(t, map[string]interface{}{"status": "candidate"})})
		require.NoError(t, err)

		updated, err := c.Replace(ctx, "r1", "2026-08", body(t, map[string]interface{}{"status": "pending"}), doc.ETag)
		require.NoError(t, err)
		assert.NotEqual(t, doc.ETag, updated.ETag)

		_, err = c.Replace(ctx, "r1", "2026-08", body(t, map[string]interface{}{"status": "merged"}), doc.ETag)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		_, err := c.Upsert(ctx, &Document{ID: "u1", PK: "2026-08", Body: body(t, map[string]interface{}{"status": "open"})})
		require.NoError(t, err)
		_, err = c.Upsert(ctx, &Document{ID: "u1", PK: "2026-08", Body: body(t, map[string]interface{}{"status": "closed"})})
		require.NoError(t, err)

		got, err := c.PointRead(ctx, "u1", "2026-08")
		require.NoError(t, err)
		assert.Contains(t, string(got.Body), "closed")
	})
}

func TestSQLiteContainerFilters(t *testing.T) {
	ctx := context.Background()
	c := openTestSQLite(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	mk := func(id, status string, count float64, updated time.Time) {
		_, err := c.Create(ctx, &Document{ID: id, PK: "2026-08", Body: body(t, map[string]interface{}{
			"status":       status,
			"ticket_count": count,
			"open_count":   1,
			"updated_at":   updated.Format(time.RFC3339Nano),
		})})
		require.NoError(t, err)
	}
	mk("a", "pending", 2, now)
	mk("b", "pending", 100, now)
	mk("c", "dismissed", 2, now)
	mk("d", "pending", 2, now.Add(-30*24*time.Hour))

	docs, err := c.Query(ctx, "2026-08", Filter{
		In:       map[string][]string{"status": {"candidate", "pending"}},
		Below:    map[string]float64{"ticket_count": 100},
		Above:    map[string]float64{"open_count": 0},
		NotOlder: map[string]time.Time{"updated_at": now.Add(-14 * 24 * time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}

func TestSQLiteContainerVectorTopK(t *testing.T) {
	ctx := context.Background()
	c := openTestSQLite(t)

	mk := func(id string, vec []float64) {
		_, err := c.Create(ctx, &Document{ID: id, PK: "2026-08", Body: body(t, map[string]interface{}{
			"status":         "pending",
			"content_vector": vec,
		})})
		require.NoError(t, err)
	}
	mk("near", []float64{0.9, 0.1})
	mk("far", []float64{0, 1})

	matches, err := c.VectorTopK(ctx, "2026-08", 1, Filter{}, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].Doc.ID)
}
