package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/shared"
	"github.com/gotrs-io/dedup-ce/internal/vectors"
)

// Conditional cluster writes are retried this many times before the
// conflict surfaces to the caller.
const maxETagRetries = 3

// errNotJoinable marks a candidate that stopped being eligible between
// search and add (filled up, dismissed, merged); the caller moves on to
// the next candidate.
var errNotJoinable = errors.New("cluster no longer joinable")

// ClusteringService orchestrates cluster assignment for one ticket:
// candidate search, scoring, pick-or-create, ETag-guarded add.
type ClusteringService struct {
	stores *repository.Stores
	engine *dedup.Engine
	now    func() time.Time
}

func NewClusteringService(stores *repository.Stores, engine *dedup.Engine) *ClusteringService {
	return &ClusteringService{stores: stores, engine: engine, now: time.Now}
}

// SetClock overrides the service clock, used by tests.
func (s *ClusteringService) SetClock(now func() time.Time) { s.now = now }

// FindOrCreateCluster decides which cluster the ticket joins, or seeds a
// new candidate cluster. The ticket must carry its content vector; the
// ticket row itself is not written here.
func (s *ClusteringService) FindOrCreateCluster(ctx context.Context, t *models.Ticket, pk string) (*models.Cluster, *models.DedupDecision, error) {
	cfg := s.engine.Config()
	now := s.now().UTC()

	customer := ""
	if cfg.FilterByCustomer {
		customer = t.CustomerID
	}
	candidates, err := s.stores.Clusters.SearchCandidates(ctx,
		dedup.SearchPartitions(t.CreatedAt, cfg.SearchMonths),
		repository.CandidateQuery{
			Vector:       t.ContentVector,
			TopK:         cfg.VectorTopK,
			MaxMembers:   cfg.MaxMembers,
			UpdatedAfter: now.Add(-cfg.Window),
			CustomerID:   customer,
		})
	if err != nil {
		return nil, nil, err
	}

	if len(candidates) == 0 {
		return s.createWithDecision(ctx, t, pk, now, &models.DedupDecision{
			Decision:       models.DecisionNewCluster,
			DecisionReason: models.ReasonNoCandidates,
		})
	}

	scored := make([]dedup.Scored, 0, len(candidates))
	for _, cand := range candidates {
		conf, sig := s.engine.Score(t, cand.Cluster, cand.Similarity)
		scored = append(scored, dedup.Scored{
			Cluster:    cand.Cluster,
			Similarity: cand.Similarity,
			Confidence: conf,
			Decision:   s.engine.Decide(conf),
			Signals:    sig,
		})
	}
	dedup.Rank(scored)

	anyEligible := false
	for _, sc := range scored {
		if sc.Decision == models.DecisionNewCluster {
			break // ranked by confidence; nothing below is eligible either
		}
		anyEligible = true
		cl, err := s.addToCluster(ctx, sc.Cluster.ID, pk, t, sc.Confidence, now)
		if errors.Is(err, errNotJoinable) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		reason := models.ReasonAutoMatch
		if sc.Decision == models.DecisionReview {
			reason = models.ReasonReviewMatch
		}
		dedupDecisions.WithLabelValues(sc.Decision).Inc()
		return cl, &models.DedupDecision{
			Decision:         sc.Decision,
			DecisionReason:   reason,
			ConfidenceScore:  sc.Confidence,
			MatchedClusterID: cl.ID,
			SemanticScore:    sc.Similarity,
			Signals:          sc.Signals,
		}, nil
	}

	// None eligible, or every eligible candidate filled up under us.
	// Record the best candidate on the decision either way.
	best := scored[0]
	reason := models.ReasonBelowReviewThreshold
	if anyEligible {
		reason = models.ReasonAllCandidatesFull
	}
	return s.createWithDecision(ctx, t, pk, now, &models.DedupDecision{
		Decision:         models.DecisionNewCluster,
		DecisionReason:   reason,
		ConfidenceScore:  best.Confidence,
		MatchedClusterID: best.Cluster.ID,
		SemanticScore:    best.Similarity,
		Signals:          best.Signals,
	})
}

func (s *ClusteringService) createWithDecision(ctx context.Context, t *models.Ticket, pk string, now time.Time, d *models.DedupDecision) (*models.Cluster, *models.DedupDecision, error) {
	cl, err := s.createCluster(ctx, t, pk, now)
	if err != nil {
		return nil, nil, err
	}
	dedupDecisions.WithLabelValues(models.DecisionNewCluster).Inc()
	return cl, d, nil
}

// createCluster seeds a candidate cluster from its first ticket.
func (s *ClusteringService) createCluster(ctx context.Context, t *models.Ticket, pk string, now time.Time) (*models.Cluster, error) {
	open := 0
	if s.engine.IsOpen(t.Status) {
		open = 1
	}
	centroid := make([]float32, len(t.ContentVector))
	copy(centroid, t.ContentVector)

	cl := &models.Cluster{
		ID:                     uuid.New().String(),
		PK:                     pk,
		Status:                 models.ClusterStatusCandidate,
		CustomerID:             t.CustomerID,
		Category:               t.Category,
		Subcategory:            t.Subcategory,
		RepresentativeTicketID: t.ID,
		Members:                []models.ClusterMember{memberOf(t, 0, now)},
		TicketCount:            1,
		OpenCount:              open,
		CentroidVector:         centroid,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.stores.Clusters.Create(ctx, cl); err != nil {
		return nil, err
	}
	return cl, nil
}

// addToCluster appends the ticket to the cluster under an ETag guard,
// re-reading and retrying when a concurrent writer lands first.
func (s *ClusteringService) addToCluster(ctx context.Context, clusterID, pk string, t *models.Ticket, confidence float64, now time.Time) (*models.Cluster, error) {
	cfg := s.engine.Config()
	for attempt := 0; attempt < maxETagRetries; attempt++ {
		cl, err := s.stores.Clusters.Get(ctx, clusterID, pk)
		if err != nil {
			return nil, err
		}
		if cl.Status != models.ClusterStatusCandidate && cl.Status != models.ClusterStatusPending {
			return nil, errNotJoinable
		}
		if cl.TicketCount >= cfg.MaxMembers {
			return nil, errNotJoinable
		}

		prior := cl.TicketCount
		cl.Members = append(cl.Members, memberOf(t, confidence, now))
		cl.TicketCount = len(cl.Members)
		cl.CentroidVector = vectors.IncrementalMean(cl.CentroidVector, prior, t.ContentVector)
		if s.engine.IsOpen(t.Status) {
			cl.OpenCount++
		}
		if prior == 1 && cl.Status == models.ClusterStatusCandidate {
			cl.Status = models.ClusterStatusPending
		}
		cl.UpdatedAt = now

		err = s.stores.Clusters.Replace(ctx, cl)
		if errors.Is(err, repository.ErrPrecondition) {
			etagRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
	return nil, shared.E(shared.KindConflict, shared.CodeETagExhausted,
		"cluster %s kept changing; gave up after %d attempts", clusterID, maxETagRetries)
}

func memberOf(t *models.Ticket, confidence float64, now time.Time) models.ClusterMember {
	return models.ClusterMember{
		TicketID:        t.ID,
		TicketNumber:    t.TicketNumber,
		Summary:         t.Summary,
		Category:        t.Category,
		Subcategory:     t.Subcategory,
		CreatedAt:       t.CreatedAt,
		ConfidenceScore: confidence,
		AddedAt:         now,
	}
}

// RemoveMember takes a ticket out of a candidate or pending cluster,
// demoting to candidate when one member remains. The centroid is left
// untouched; it is an advisory search hint and the drift is accepted.
func (s *ClusteringService) RemoveMember(ctx context.Context, clusterID, ticketID, pk string) (*models.Cluster, error) {
	now := s.now().UTC()

	var removed *models.Cluster
	for attempt := 0; attempt < maxETagRetries; attempt++ {
		cl, err := s.stores.Clusters.Get(ctx, clusterID, pk)
		if err != nil {
			return nil, err
		}
		if cl.Status != models.ClusterStatusCandidate && cl.Status != models.ClusterStatusPending {
			return nil, shared.E(shared.KindInvalidState, shared.CodeInvalidClusterState,
				"cannot remove members from a %s cluster", cl.Status)
		}
		idx := cl.MemberIndex(ticketID)
		if idx < 0 {
			return nil, shared.E(shared.KindNotFound, shared.CodeNotMember,
				"ticket %s is not a member of cluster %s", ticketID, clusterID)
		}
		if cl.TicketCount == 1 {
			return nil, shared.E(shared.KindInvalidState, shared.CodeInvalidClusterState,
				"removing the last member would leave cluster %s empty", clusterID)
		}

		cl.Members = append(cl.Members[:idx], cl.Members[idx+1:]...)
		cl.TicketCount = len(cl.Members)
		if cl.TicketCount == 1 {
			cl.Status = models.ClusterStatusCandidate
		}
		if t, terr := s.stores.Tickets.Get(ctx, ticketID, pk); terr == nil && s.engine.IsOpen(t.Status) && cl.OpenCount > 0 {
			cl.OpenCount--
		}
		cl.UpdatedAt = now

		err = s.stores.Clusters.Replace(ctx, cl)
		if errors.Is(err, repository.ErrPrecondition) {
			etagRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		removed = cl
		break
	}
	if removed == nil {
		return nil, shared.E(shared.KindConflict, shared.CodeETagExhausted,
			"cluster %s kept changing; gave up after %d attempts", clusterID, maxETagRetries)
	}

	// Detach the ticket from the cluster it left
	if t, err := s.stores.Tickets.Get(ctx, ticketID, pk); err == nil {
		t.ClusterID = ""
		t.UpdatedAt = now
		if err := s.stores.Tickets.Update(ctx, t); err != nil {
			log.Printf("remove member: detach ticket %s: %v", ticketID, err)
		}
	}
	return removed, nil
}

// Dismiss transitions a cluster to dismissed. Any status but dismissed may
// be dismissed; dismissing twice fails.
func (s *ClusteringService) Dismiss(ctx context.Context, clusterID, pk, dismissedBy, reason string) (*models.Cluster, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < maxETagRetries; attempt++ {
		cl, err := s.stores.Clusters.Get(ctx, clusterID, pk)
		if err != nil {
			return nil, err
		}
		if cl.Status == models.ClusterStatusDismissed {
			return nil, shared.E(shared.KindInvalidState, shared.CodeAlreadyDismissed,
				"cluster %s is already dismissed", clusterID)
		}
		cl.Status = models.ClusterStatusDismissed
		cl.DismissedBy = dismissedBy
		cl.DismissalReason = reason
		cl.DismissedAt = &now
		cl.UpdatedAt = now

		err = s.stores.Clusters.Replace(ctx, cl)
		if errors.Is(err, repository.ErrPrecondition) {
			etagRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
	return nil, shared.E(shared.KindConflict, shared.CodeETagExhausted,
		"cluster %s kept changing; gave up after %d attempts", clusterID, maxETagRetries)
}

// Get reads a cluster.
func (s *ClusteringService) Get(ctx context.Context, clusterID, pk string) (*models.Cluster, error) {
	return s.stores.Clusters.Get(ctx, clusterID, pk)
}

// List returns the clusters of a partition, optionally filtered by status.
func (s *ClusteringService) List(ctx context.Context, pk string, statuses ...models.ClusterStatus) ([]*models.Cluster, error) {
	return s.stores.Clusters.ListByStatus(ctx, pk, statuses...)
}

// ExpireStale transitions candidate and pending clusters idle past the
// dedup window to expired, returning how many were expired. Clusters that
// change under the sweep are skipped; the next run picks them up.
func (s *ClusteringService) ExpireStale(ctx context.Context, pk string) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.engine.Config().Window)
	stale, err := s.stores.Clusters.ListStale(ctx, pk, cutoff)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, cl := range stale {
		cl.Status = models.ClusterStatusExpired
		cl.UpdatedAt = now
		err := s.stores.Clusters.Replace(ctx, cl)
		if errors.Is(err, repository.ErrPrecondition) {
			continue
		}
		if err != nil {
			return expired, err
		}
		clustersExpired.Inc()
		expired++
	}
	return expired, nil
}
