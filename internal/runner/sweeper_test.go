package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/service"
)

func TestSweeperRunOnce(t *testing.T) {
	ctx := context.Background()
	stores := repository.NewMemory()
	clustering := service.NewClusteringService(stores, dedup.NewEngine(dedup.DefaultConfig()))

	// Seed a cluster in the current partition, last touched 20 days ago
	now := time.Now().UTC()
	pk := models.MonthKey(now)
	clustering.SetClock(func() time.Time { return now.Add(-20 * 24 * time.Hour) })
	tk := &models.Ticket{
		ID:            "t1",
		PK:            pk,
		TicketNumber:  "INC-1",
		Summary:       "stuck order",
		Category:      "Orders",
		Channel:       "web",
		CustomerID:    "cust-1",
		Status:        models.TicketStatusOpen,
		ContentVector: []float32{1, 0},
		CreatedAt:     now.Add(-20 * 24 * time.Hour),
	}
	cl, _, err := clustering.FindOrCreateCluster(ctx, tk, pk)
	require.NoError(t, err)

	clustering.SetClock(func() time.Time { return now })
	sweeper := NewSweeper(clustering, 2)
	require.NoError(t, sweeper.RunOnce(ctx))

	got, err := stores.Clusters.Get(ctx, cl.ID, pk)
	require.NoError(t, err)
	assert.Equal(t, models.ClusterStatusExpired, got.Status)
}

func TestSweeperSchedule(t *testing.T) {
	clustering := service.NewClusteringService(repository.NewMemory(), dedup.NewEngine(dedup.DefaultConfig()))
	s := NewSweeper(clustering, 1)

	assert.Error(t, s.Start("not a schedule"))
	require.NoError(t, s.Start("0 0 0 1 1 *"))
	s.Stop()
}
