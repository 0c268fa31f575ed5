package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/dedup-ce/internal/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "dedup-ce", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.True(t, cfg.Sweeper.Enabled)

	assert.Equal(t, 0.92, cfg.Dedup.AutoThreshold)
	assert.Equal(t, 0.85, cfg.Dedup.ReviewThreshold)
	assert.Equal(t, 100, cfg.Dedup.MaxClusterMembers)
	assert.Equal(t, 10, cfg.Dedup.VectorTopK)
	assert.Equal(t, 14, cfg.Dedup.DedupWindowDays)
	assert.Equal(t, 2, cfg.Dedup.ClusterSearchMonths)
	assert.Equal(t, 24, cfg.Dedup.RevertWindowHours)
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	ec := cfg.Dedup.EngineConfig()

	assert.Equal(t, 0.92, ec.AutoThreshold)
	assert.Equal(t, 0.85, ec.ReviewThreshold)
	assert.Equal(t, 0.85, ec.WeightSemantic)
	assert.Equal(t, 0.10, ec.WeightSubcategory)
	assert.Equal(t, 0.03, ec.WeightCategory)
	assert.Equal(t, 0.02, ec.WeightTime)
	assert.Equal(t, 14*24*time.Hour, ec.Window)
	assert.Equal(t, 2, ec.SearchMonths)
	assert.Equal(t, 100, ec.MaxMembers)
	assert.False(t, ec.FilterByCustomer)
	assert.Equal(t, []models.TicketStatus{models.TicketStatusOpen, models.TicketStatusPending}, ec.OpenStatuses)
}

func TestRevertWindow(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 24*time.Hour, cfg.Dedup.RevertWindow())
}

func TestOnReload(t *testing.T) {
	var got []*Config
	OnReload(func(c *Config) { got = append(got, c) })
	OnReload(func(c *Config) { got = append(got, c) })

	fresh := Default()
	fresh.Dedup.AutoThreshold = 0.95
	notifyReload(fresh)

	require.Len(t, got, 2)
	assert.Same(t, fresh, got[0])
	assert.Equal(t, 0.95, got[1].Dedup.AutoThreshold)
}
