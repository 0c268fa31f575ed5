package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gotrs-io/dedup-ce/internal/embedding"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// IngestService is the entry point for ingesting one ticket: uniqueness
// check, embedding, dedup decision, then a single ticket write carrying
// the vector, cluster reference and decision.
type IngestService struct {
	stores     *repository.Stores
	clustering *ClusteringService
	provider   *embedding.Provider
	now        func() time.Time
}

func NewIngestService(stores *repository.Stores, clustering *ClusteringService, provider *embedding.Provider) *IngestService {
	return &IngestService{stores: stores, clustering: clustering, provider: provider, now: time.Now}
}

// SetClock overrides the service clock, used by tests.
func (s *IngestService) SetClock(now func() time.Time) { s.now = now }

// Ingest creates a ticket with its dedup decision. The ordering is
// load-bearing: embedding and cluster assignment are derived first, and
// the ticket row is written exactly once, never without a decision.
func (s *IngestService) Ingest(ctx context.Context, in *models.TicketCreate) (*models.Ticket, error) {
	now := s.now().UTC()
	createdAt := now
	if in.CreatedAt != nil {
		createdAt = in.CreatedAt.UTC()
	}
	pk := models.MonthKey(createdAt)

	// Uniqueness check first; the store's unique-key constraint is the
	// backstop against a concurrent create of the same number.
	if _, err := s.stores.Tickets.GetByNumber(ctx, in.TicketNumber, pk); err == nil {
		return nil, shared.E(shared.KindConflict, shared.CodeDuplicateTicketNumber,
			"ticket number %s already exists in partition %s", in.TicketNumber, pk)
	} else if !shared.IsKind(err, shared.KindNotFound) {
		return nil, err
	}

	t := buildTicket(in, pk, createdAt, now)

	t.DedupText = in.DedupText()
	emb, err := s.provider.Get()
	if err != nil {
		embedFailures.Inc()
		return nil, shared.Wrap(shared.KindUnavailable, shared.CodeEmbeddingUnavailable, err,
			"embedding provider unavailable")
	}
	t.ContentVector, err = emb.Embed(ctx, t.DedupText)
	if err != nil {
		embedFailures.Inc()
		return nil, shared.Wrap(shared.KindUnavailable, shared.CodeEmbeddingUnavailable, err,
			"embedding failed for ticket %s", t.TicketNumber)
	}

	cluster, decision, err := s.clustering.FindOrCreateCluster(ctx, t, pk)
	if err != nil {
		return nil, err
	}
	t.ClusterID = cluster.ID
	t.Dedup = decision

	if err := s.stores.Tickets.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func buildTicket(in *models.TicketCreate, pk string, createdAt, now time.Time) *models.Ticket {
	status := in.Status
	if status == "" {
		status = models.TicketStatusOpen
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	return &models.Ticket{
		ID:            uuid.New().String(),
		PK:            pk,
		TicketNumber:  in.TicketNumber,
		Summary:       in.Summary,
		Description:   in.Description,
		Category:      in.Category,
		Subcategory:   in.Subcategory,
		Channel:       in.Channel,
		Severity:      in.Severity,
		Merchant:      in.Merchant,
		CustomerID:    in.CustomerID,
		Name:          in.Name,
		MobileNumber:  in.MobileNumber,
		Email:         in.Email,
		AccountType:   in.AccountType,
		TransactionID: in.TransactionID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		OccurredAt:    in.OccurredAt,
		Status:        status,
		Priority:      priority,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
}
