package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gotrs-io/dedup-ce/internal/docstore"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// TicketStore is the typed view over the tickets container.
type TicketStore struct {
	c docstore.Container
}

func NewTicketStore(c docstore.Container) *TicketStore {
	return &TicketStore{c: c}
}

// Get reads a ticket by id within a partition.
func (s *TicketStore) Get(ctx context.Context, id, pk string) (*models.Ticket, error) {
	doc, err := s.c.PointRead(ctx, id, pk)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, shared.E(shared.KindNotFound, "", "ticket %s not found in partition %s", id, pk)
	}
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "read ticket %s", id)
	}
	return decodeTicket(doc)
}

// GetByNumber looks a ticket up by its public ticket number within a
// partition.
func (s *TicketStore) GetByNumber(ctx context.Context, number, pk string) (*models.Ticket, error) {
	docs, err := s.c.Query(ctx, pk, docstore.Filter{Equals: map[string]string{"ticket_number": number}})
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "query ticket number %s", number)
	}
	if len(docs) == 0 {
		return nil, shared.E(shared.KindNotFound, "", "ticket number %s not found in partition %s", number, pk)
	}
	return decodeTicket(docs[0])
}

// Create persists a new ticket. A duplicate ticket number within the
// partition surfaces as a conflict.
func (s *TicketStore) Create(ctx context.Context, t *models.Ticket) error {
	body, err := encodeBody(t, &t.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Create(ctx, &docstore.Document{ID: t.ID, PK: t.PK, Body: body})
	if errors.Is(err, docstore.ErrUniqueViolation) {
		return shared.E(shared.KindConflict, shared.CodeDuplicateTicketNumber,
			"ticket number %s already exists in partition %s", t.TicketNumber, t.PK)
	}
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "create ticket %s", t.ID)
	}
	t.ETag = doc.ETag
	return nil
}

// Update writes a ticket back. Ticket rows are last-writer-wins; only
// cluster rows need ETag guards.
func (s *TicketStore) Update(ctx context.Context, t *models.Ticket) error {
	body, err := encodeBody(t, &t.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Upsert(ctx, &docstore.Document{ID: t.ID, PK: t.PK, Body: body})
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "update ticket %s", t.ID)
	}
	t.ETag = doc.ETag
	return nil
}

func decodeTicket(doc *docstore.Document) (*models.Ticket, error) {
	var t models.Ticket
	if err := json.Unmarshal(doc.Body, &t); err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "decode ticket %s", doc.ID)
	}
	t.ETag = doc.ETag
	return &t, nil
}

// encodeBody marshals an entity with its ETag field blanked: the stored
// body never carries a stale tag.
func encodeBody(v interface{}, etag *string) ([]byte, error) {
	saved := *etag
	*etag = ""
	body, err := json.Marshal(v)
	*etag = saved
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "encode document")
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty document body")
	}
	return body, nil
}
