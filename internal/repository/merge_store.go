package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gotrs-io/dedup-ce/internal/docstore"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// MergeStore is the typed view over the merge-operations container.
type MergeStore struct {
	c docstore.Container
}

func NewMergeStore(c docstore.Container) *MergeStore {
	return &MergeStore{c: c}
}

// Get reads a merge operation by id within a partition.
func (s *MergeStore) Get(ctx context.Context, id, pk string) (*models.MergeOperation, error) {
	doc, err := s.c.PointRead(ctx, id, pk)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, shared.E(shared.KindNotFound, "", "merge %s not found in partition %s", id, pk)
	}
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "read merge %s", id)
	}
	return decodeMerge(doc)
}

// Create persists a new merge operation.
func (s *MergeStore) Create(ctx context.Context, m *models.MergeOperation) error {
	body, err := encodeBody(m, &m.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Create(ctx, &docstore.Document{ID: m.ID, PK: m.PK, Body: body})
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "create merge %s", m.ID)
	}
	m.ETag = doc.ETag
	return nil
}

// Update writes the merge back (status and revert fields only ever change).
func (s *MergeStore) Update(ctx context.Context, m *models.MergeOperation) error {
	body, err := encodeBody(m, &m.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Upsert(ctx, &docstore.Document{ID: m.ID, PK: m.PK, Body: body})
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "update merge %s", m.ID)
	}
	m.ETag = doc.ETag
	return nil
}

// CompletedByPrimary returns the completed merges in a partition whose
// primary is the given ticket, for subsequent-merge conflict detection.
func (s *MergeStore) CompletedByPrimary(ctx context.Context, pk, primaryTicketID string) ([]*models.MergeOperation, error) {
	docs, err := s.c.Query(ctx, pk, docstore.Filter{Equals: map[string]string{
		"primary_ticket_id": primaryTicketID,
		"status":            string(models.MergeStatusCompleted),
	}})
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "query merges by primary %s", primaryTicketID)
	}
	out := make([]*models.MergeOperation, 0, len(docs))
	for _, doc := range docs {
		m, err := decodeMerge(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeMerge(doc *docstore.Document) (*models.MergeOperation, error) {
	var m models.MergeOperation
	if err := json.Unmarshal(doc.Body, &m); err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "decode merge %s", doc.ID)
	}
	m.ETag = doc.ETag
	return &m, nil
}
