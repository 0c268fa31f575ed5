package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/embedding"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// captureEmbedder records the text it is asked to embed.
type captureEmbedder struct {
	lastText string
	vec      []float32
	err      error
}

func (e *captureEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.lastText = text
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func (e *captureEmbedder) Dimensions() int { return len(e.vec) }

func newIngestFixture(t *testing.T, emb embedding.Embedder) (*repository.Stores, *IngestService) {
	t.Helper()
	stores := repository.NewMemory()
	clustering := NewClusteringService(stores, dedup.NewEngine(dedup.DefaultConfig()))
	clustering.SetClock(func() time.Time { return testNow })
	svc := NewIngestService(stores, clustering, embedding.NewStaticProvider(emb))
	svc.SetClock(func() time.Time { return testNow })
	return stores, svc
}

func ingestInput(number string) *models.TicketCreate {
	return &models.TicketCreate{
		TicketNumber: number,
		Summary:      "refund not received",
		Description:  "refund for order 4411 missing",
		Category:     "Billing",
		Subcategory:  "Refunds",
		Channel:      "app",
		Merchant:     "acme-store",
		CustomerID:   "cust-42",
		Name:         "Jordan Smith",
		MobileNumber: "+15550100",
		Email:        "jordan@example.com",
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates ticket with a dedup decision", func(t *testing.T) {
		emb := &captureEmbedder{vec: []float32{1, 0}}
		stores, svc := newIngestFixture(t, emb)

		out, err := svc.Ingest(ctx, ingestInput("INC-100"))
		require.NoError(t, err)

		assert.NotEmpty(t, out.ID)
		assert.Equal(t, "2026-08", out.PK)
		assert.Equal(t, models.TicketStatusOpen, out.Status)
		assert.Equal(t, models.PriorityMedium, out.Priority)
		assert.NotEmpty(t, out.ClusterID)
		require.NotNil(t, out.Dedup)
		assert.Equal(t, models.DecisionNewCluster, out.Dedup.Decision)
		assert.Equal(t, models.ReasonNoCandidates, out.Dedup.DecisionReason)

		stored, err := stores.Tickets.Get(ctx, out.ID, out.PK)
		require.NoError(t, err)
		assert.Equal(t, out.ClusterID, stored.ClusterID)
	})

	t.Run("embedded text carries no customer identifiers", func(t *testing.T) {
		emb := &captureEmbedder{vec: []float32{1, 0}}
		_, svc := newIngestFixture(t, emb)

		out, err := svc.Ingest(ctx, ingestInput("INC-101"))
		require.NoError(t, err)

		assert.Equal(t, out.DedupText, emb.lastText)
		assert.NotContains(t, emb.lastText, "cust-42")
		assert.NotContains(t, emb.lastText, "Jordan")
		assert.NotContains(t, emb.lastText, "+15550100")
		assert.NotContains(t, emb.lastText, "jordan@example.com")
		assert.Contains(t, emb.lastText, "refund not received")
		assert.Contains(t, emb.lastText, "acme-store")
	})

	t.Run("duplicate ticket number rejected", func(t *testing.T) {
		_, svc := newIngestFixture(t, &captureEmbedder{vec: []float32{1, 0}})

		_, err := svc.Ingest(ctx, ingestInput("INC-102"))
		require.NoError(t, err)
		_, err = svc.Ingest(ctx, ingestInput("INC-102"))
		assert.True(t, shared.IsKind(err, shared.KindConflict))
		assert.Equal(t, shared.CodeDuplicateTicketNumber, shared.CodeOf(err))
	})

	t.Run("embedding failure persists nothing", func(t *testing.T) {
		emb := &captureEmbedder{vec: []float32{1, 0}, err: errors.New("upstream timeout")}
		stores, svc := newIngestFixture(t, emb)

		_, err := svc.Ingest(ctx, ingestInput("INC-103"))
		assert.True(t, shared.IsKind(err, shared.KindUnavailable))
		assert.Equal(t, shared.CodeEmbeddingUnavailable, shared.CodeOf(err))

		_, err = stores.Tickets.GetByNumber(ctx, "INC-103", "2026-08")
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
		clusters, err := stores.Clusters.ListByStatus(ctx, "2026-08")
		require.NoError(t, err)
		assert.Empty(t, clusters)
	})

	t.Run("near duplicate attaches to the first cluster", func(t *testing.T) {
		_, svc := newIngestFixture(t, embedding.NewDeterministic(64))

		first, err := svc.Ingest(ctx, ingestInput("INC-104"))
		require.NoError(t, err)
		second, err := svc.Ingest(ctx, ingestInput("INC-105"))
		require.NoError(t, err)

		assert.Equal(t, first.ClusterID, second.ClusterID)
		assert.Equal(t, models.DecisionAuto, second.Dedup.Decision)
		assert.Equal(t, models.ReasonAutoMatch, second.Dedup.DecisionReason)
		assert.InDelta(t, 1.0, second.Dedup.SemanticScore, 1e-6)
	})

	t.Run("explicit created_at picks the partition", func(t *testing.T) {
		_, svc := newIngestFixture(t, &captureEmbedder{vec: []float32{1, 0}})

		in := ingestInput("INC-106")
		created := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)
		in.CreatedAt = &created

		out, err := svc.Ingest(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "2026-07", out.PK)
		assert.Equal(t, created, out.CreatedAt)
	})
}
