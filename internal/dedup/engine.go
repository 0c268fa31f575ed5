// Package dedup contains the pure scoring and decision logic of the
// ticket-deduplication engine: no I/O, no clocks, no store access.
package dedup

import (
	"sort"
	"sync"
	"time"

	"github.com/gotrs-io/dedup-ce/internal/models"
)

// Config holds the tunable weights, thresholds and limits of the engine.
// Weights need not sum to 1; the resulting confidence is not a calibrated
// probability and may exceed 1.0.
type Config struct {
	AutoThreshold   float64
	ReviewThreshold float64

	WeightSemantic    float64
	WeightSubcategory float64
	WeightCategory    float64
	WeightTime        float64

	Window           time.Duration
	SearchMonths     int
	VectorTopK       int
	MaxMembers       int
	FilterByCustomer bool
	OpenStatuses     []models.TicketStatus
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		AutoThreshold:     0.92,
		ReviewThreshold:   0.85,
		WeightSemantic:    0.85,
		WeightSubcategory: 0.10,
		WeightCategory:    0.03,
		WeightTime:        0.02,
		Window:            14 * 24 * time.Hour,
		SearchMonths:      2,
		VectorTopK:        10,
		MaxMembers:        100,
		FilterByCustomer:  false,
		OpenStatuses:      []models.TicketStatus{models.TicketStatusOpen, models.TicketStatusPending},
	}
}

// Engine evaluates tickets against candidate clusters. The config may be
// swapped at runtime (config hot reload); reads take a snapshot.
type Engine struct {
	mu  sync.RWMutex
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{}
	e.SetConfig(cfg)
	return e
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetConfig replaces the tuning wholesale. In-flight evaluations keep the
// snapshot they started with.
func (e *Engine) SetConfig(cfg Config) {
	if cfg.SearchMonths < 1 {
		cfg.SearchMonths = 1
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// IsOpen reports whether a ticket status counts toward cluster open_count.
func (e *Engine) IsOpen(s models.TicketStatus) bool {
	for _, os := range e.Config().OpenStatuses {
		if s == os {
			return true
		}
	}
	return false
}

// Proximity maps the distance between two timestamps into [0, 1]: 1 when
// identical, linearly down to 0 at the window boundary.
func Proximity(a, b time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	p := 1 - d.Seconds()/window.Seconds()
	if p < 0 {
		return 0
	}
	return p
}

// Score combines the semantic similarity with structured-field signals and
// time proximity into a confidence score for joining t to c.
func (e *Engine) Score(t *models.Ticket, c *models.Cluster, similarity float64) (float64, models.DedupSignals) {
	cfg := e.Config()
	sig := models.DedupSignals{
		SubcategoryMatch: t.Subcategory != "" && t.Subcategory == c.Subcategory,
		CategoryMatch:    t.Category == c.Category,
		TimeProximity:    Proximity(t.CreatedAt, c.UpdatedAt, cfg.Window),
	}

	conf := cfg.WeightSemantic * similarity
	if sig.SubcategoryMatch {
		conf += cfg.WeightSubcategory
	}
	if sig.CategoryMatch {
		conf += cfg.WeightCategory
	}
	conf += cfg.WeightTime * sig.TimeProximity
	return conf, sig
}

// Decide applies the three-tier policy to a confidence score.
func (e *Engine) Decide(conf float64) string {
	cfg := e.Config()
	switch {
	case conf >= cfg.AutoThreshold:
		return models.DecisionAuto
	case conf >= cfg.ReviewThreshold:
		return models.DecisionReview
	default:
		return models.DecisionNewCluster
	}
}

// SearchPartitions enumerates the month partition keys to search, newest
// first, starting at ref.
func SearchPartitions(ref time.Time, months int) []string {
	if months < 1 {
		months = 1
	}
	ref = ref.UTC()
	keys := make([]string, 0, months)
	y, m, _ := ref.Date()
	for i := 0; i < months; i++ {
		keys = append(keys, models.MonthKey(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)))
		m--
		if m < time.January {
			m = time.December
			y--
		}
	}
	return keys
}

// Scored pairs a candidate cluster with its evaluation.
type Scored struct {
	Cluster    *models.Cluster
	Similarity float64
	Confidence float64
	Decision   string
	Signals    models.DedupSignals
}

// Rank orders scored candidates by confidence, then similarity, then
// cluster recency. The order decides which eligible cluster wins.
func Rank(cands []Scored) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		return cands[i].Cluster.UpdatedAt.After(cands[j].Cluster.UpdatedAt)
	})
}
