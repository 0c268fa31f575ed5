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
)

// MergeService executes the reversible merge protocol: merge with
// per-ticket snapshots, revert with deadline and conflict checks.
type MergeService struct {
	stores       *repository.Stores
	engine       *dedup.Engine
	revertWindow time.Duration
	now          func() time.Time
}

func NewMergeService(stores *repository.Stores, engine *dedup.Engine, revertWindow time.Duration) *MergeService {
	if revertWindow <= 0 {
		revertWindow = 24 * time.Hour
	}
	return &MergeService{stores: stores, engine: engine, revertWindow: revertWindow, now: time.Now}
}

// SetClock overrides the service clock, used by tests.
func (s *MergeService) SetClock(now func() time.Time) { s.now = now }

// Merge folds the secondary members of a pending cluster into the primary
// ticket, capturing a pre-merge snapshot of every secondary so the merge
// can be reverted within the revert window.
func (s *MergeService) Merge(ctx context.Context, clusterID, primaryTicketID, pk, performedBy string, behavior models.MergeBehavior) (*models.MergeOperation, error) {
	cl, err := s.stores.Clusters.Get(ctx, clusterID, pk)
	if err != nil {
		return nil, err
	}
	if cl.Status != models.ClusterStatusPending {
		// Candidate clusters have a single member: nothing to merge.
		return nil, shared.E(shared.KindInvalidState, shared.CodeInvalidClusterState,
			"cluster %s is %s; only pending clusters can be merged", clusterID, cl.Status)
	}
	if cl.MemberIndex(primaryTicketID) < 0 {
		return nil, shared.E(shared.KindInvalidState, shared.CodePrimaryNotInCluster,
			"ticket %s is not a member of cluster %s", primaryTicketID, clusterID)
	}

	secondaries := make([]string, 0, len(cl.Members)-1)
	for _, m := range cl.Members {
		if m.TicketID != primaryTicketID {
			secondaries = append(secondaries, m.TicketID)
		}
	}
	if len(secondaries) == 0 {
		return nil, shared.E(shared.KindInvalidState, shared.CodeNothingToMerge,
			"cluster %s has no secondary tickets", clusterID)
	}
	if behavior == "" {
		behavior = models.MergeKeepLatest
	}

	now := s.now().UTC()

	// (a) snapshots before anything mutates
	snapshots := make(map[string]models.TicketSnapshot, len(secondaries))
	openBefore := 0
	for _, id := range secondaries {
		t, err := s.stores.Tickets.Get(ctx, id, pk)
		if err != nil {
			return nil, err
		}
		snapshots[id] = models.TicketSnapshot{
			ClusterID:    t.ClusterID,
			MergedIntoID: t.MergedIntoID,
			UpdatedAt:    t.UpdatedAt,
		}
		if s.engine.IsOpen(t.Status) {
			openBefore++
		}
	}

	// (b) the merge record itself
	op := &models.MergeOperation{
		ID:                 uuid.New().String(),
		PK:                 pk,
		ClusterID:          clusterID,
		PrimaryTicketID:    primaryTicketID,
		SecondaryTicketIDs: secondaries,
		MergeBehavior:      behavior,
		PerformedBy:        performedBy,
		PerformedAt:        now,
		RevertDeadline:     now.Add(s.revertWindow),
		Status:             models.MergeStatusCompleted,
		OriginalStates:     snapshots,
	}
	if err := s.stores.Merges.Create(ctx, op); err != nil {
		return nil, err
	}

	// (c) cluster goes merged, open count drops by the merged-away
	// secondaries that were open
	if err := s.transitionCluster(ctx, clusterID, pk, func(cl *models.Cluster) error {
		if cl.Status != models.ClusterStatusPending {
			return shared.E(shared.KindInvalidState, shared.CodeInvalidClusterState,
				"cluster %s changed to %s during merge", clusterID, cl.Status)
		}
		cl.Status = models.ClusterStatusMerged
		cl.OpenCount -= openBefore
		if cl.OpenCount < 0 {
			cl.OpenCount = 0
		}
		cl.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}

	// (d) point the secondaries at the primary. Not atomic with (c); a
	// partial failure is compensated by revert-with-force.
	for _, id := range secondaries {
		t, err := s.stores.Tickets.Get(ctx, id, pk)
		if err != nil {
			return nil, err
		}
		t.MergedIntoID = primaryTicketID
		t.UpdatedAt = now
		if err := s.stores.Tickets.Update(ctx, t); err != nil {
			return nil, err
		}
	}

	mergeOps.WithLabelValues("merge").Inc()
	return op, nil
}

// Revert undoes a completed merge within its revert window. Conflicts
// (a later merge on the same primary, or a secondary modified since the
// merge) fail the revert unless force is set.
func (s *MergeService) Revert(ctx context.Context, mergeID, pk, revertedBy, reason string, force bool) (*models.MergeOperation, error) {
	op, err := s.stores.Merges.Get(ctx, mergeID, pk)
	if err != nil {
		return nil, err
	}
	if op.Status == models.MergeStatusReverted {
		return nil, shared.E(shared.KindInvalidState, shared.CodeAlreadyReverted,
			"merge %s was already reverted", mergeID)
	}
	now := s.now().UTC()
	if now.After(op.RevertDeadline) {
		return nil, shared.E(shared.KindDeadlineExceeded, shared.CodeRevertWindowExpired,
			"revert window for merge %s expired at %s", mergeID, op.RevertDeadline.Format(time.RFC3339))
	}

	conflicts, err := s.detectConflicts(ctx, op, pk)
	if err != nil {
		return nil, err
	}
	if !conflicts.Empty() {
		if !force {
			return nil, &shared.Error{
				Kind:      shared.KindMergeConflict,
				Code:      shared.CodeMergeConflict,
				Message:   "merge " + mergeID + " has conflicts; pass force to revert anyway",
				Conflicts: conflicts,
			}
		}
		log.Printf("revert merge %s: forcing past conflicts (merges=%v tickets=%v)",
			mergeID, conflicts.SubsequentMergeIDs, conflicts.ModifiedTicketIDs)
	}

	// Restore every secondary from its snapshot
	restoredOpen := 0
	for _, id := range op.SecondaryTicketIDs {
		snap, ok := op.OriginalStates[id]
		if !ok {
			continue
		}
		t, err := s.stores.Tickets.Get(ctx, id, pk)
		if err != nil {
			return nil, err
		}
		t.MergedIntoID = ""
		t.ClusterID = snap.ClusterID
		t.UpdatedAt = now
		if err := s.stores.Tickets.Update(ctx, t); err != nil {
			return nil, err
		}
		if s.engine.IsOpen(t.Status) {
			restoredOpen++
		}
	}

	op.Status = models.MergeStatusReverted
	op.RevertedBy = revertedBy
	op.RevertedAt = &now
	op.RevertReason = reason
	if err := s.stores.Merges.Update(ctx, op); err != nil {
		return nil, err
	}

	if err := s.transitionCluster(ctx, op.ClusterID, pk, func(cl *models.Cluster) error {
		cl.Status = models.ClusterStatusPending
		cl.OpenCount += restoredOpen
		if cl.OpenCount > cl.TicketCount {
			cl.OpenCount = cl.TicketCount
		}
		cl.UpdatedAt = now
		return nil
	}); err != nil {
		return nil, err
	}

	mergeOps.WithLabelValues("revert").Inc()
	return op, nil
}

// detectConflicts runs both conflict checks regardless of force, so a
// forced revert still logs what it is overriding.
func (s *MergeService) detectConflicts(ctx context.Context, op *models.MergeOperation, pk string) (*shared.MergeConflicts, error) {
	conflicts := &shared.MergeConflicts{}

	later, err := s.stores.Merges.CompletedByPrimary(ctx, pk, op.PrimaryTicketID)
	if err != nil {
		return nil, err
	}
	for _, other := range later {
		if other.ID != op.ID && other.PerformedAt.After(op.PerformedAt) {
			conflicts.SubsequentMergeIDs = append(conflicts.SubsequentMergeIDs, other.ID)
		}
	}

	for _, id := range op.SecondaryTicketIDs {
		snap, ok := op.OriginalStates[id]
		if !ok {
			continue
		}
		t, err := s.stores.Tickets.Get(ctx, id, pk)
		if shared.IsKind(err, shared.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if t.UpdatedAt.After(snap.UpdatedAt) && t.UpdatedAt.After(op.PerformedAt) {
			conflicts.ModifiedTicketIDs = append(conflicts.ModifiedTicketIDs, id)
		}
	}
	return conflicts, nil
}

// Get reads a merge operation.
func (s *MergeService) Get(ctx context.Context, mergeID, pk string) (*models.MergeOperation, error) {
	return s.stores.Merges.Get(ctx, mergeID, pk)
}

// transitionCluster applies mutate under the usual ETag retry loop.
func (s *MergeService) transitionCluster(ctx context.Context, clusterID, pk string, mutate func(*models.Cluster) error) error {
	for attempt := 0; attempt < maxETagRetries; attempt++ {
		cl, err := s.stores.Clusters.Get(ctx, clusterID, pk)
		if err != nil {
			return err
		}
		if err := mutate(cl); err != nil {
			return err
		}
		err = s.stores.Clusters.Replace(ctx, cl)
		if errors.Is(err, repository.ErrPrecondition) {
			etagRetries.Inc()
			continue
		}
		return err
	}
	return shared.E(shared.KindConflict, shared.CodeETagExhausted,
		"cluster %s kept changing; gave up after %d attempts", clusterID, maxETagRetries)
}
