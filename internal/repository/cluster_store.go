package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gotrs-io/dedup-ce/internal/docstore"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/shared"
)

// ErrPrecondition is surfaced by Replace when the cluster changed under the
// caller; the clustering service re-reads and retries on it.
var ErrPrecondition = docstore.ErrPreconditionFailed

// ClusterStore is the typed view over the clusters container.
type ClusterStore struct {
	c docstore.Container
}

func NewClusterStore(c docstore.Container) *ClusterStore {
	return &ClusterStore{c: c}
}

// Get reads a cluster by id within a partition.
func (s *ClusterStore) Get(ctx context.Context, id, pk string) (*models.Cluster, error) {
	doc, err := s.c.PointRead(ctx, id, pk)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, shared.E(shared.KindNotFound, "", "cluster %s not found in partition %s", id, pk)
	}
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "read cluster %s", id)
	}
	return decodeCluster(doc)
}

// Create persists a new cluster.
func (s *ClusterStore) Create(ctx context.Context, cl *models.Cluster) error {
	body, err := encodeBody(cl, &cl.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Create(ctx, &docstore.Document{ID: cl.ID, PK: cl.PK, Body: body})
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "create cluster %s", cl.ID)
	}
	cl.ETag = doc.ETag
	return nil
}

// Replace conditionally writes a cluster guarded by the ETag it was read
// with. On a lost race the returned error wraps ErrPrecondition.
func (s *ClusterStore) Replace(ctx context.Context, cl *models.Cluster) error {
	if cl.ETag == "" {
		return fmt.Errorf("replace cluster %s: missing etag", cl.ID)
	}
	body, err := encodeBody(cl, &cl.ETag)
	if err != nil {
		return err
	}
	doc, err := s.c.Replace(ctx, cl.ID, cl.PK, body, cl.ETag)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		return fmt.Errorf("replace cluster %s: %w", cl.ID, docstore.ErrPreconditionFailed)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return shared.E(shared.KindNotFound, "", "cluster %s not found in partition %s", cl.ID, cl.PK)
	}
	if err != nil {
		return shared.Wrap(shared.KindStoreError, "", err, "replace cluster %s", cl.ID)
	}
	cl.ETag = doc.ETag
	return nil
}

// Candidate is a cluster returned by the vector search together with its
// similarity to the probe vector.
type Candidate struct {
	Cluster    *models.Cluster
	Similarity float64
}

// CandidateQuery is the fixed filter of the candidate search: capacity cap,
// recency window, at least one open member, optional customer scoping.
type CandidateQuery struct {
	Vector       []float32
	TopK         int
	MaxMembers   int
	UpdatedAfter time.Time
	CustomerID   string // empty disables customer scoping
}

// SearchCandidates runs the vector top-K against each partition in order,
// merges the results, resorts by similarity and keeps the overall top K.
func (s *ClusterStore) SearchCandidates(ctx context.Context, pks []string, q CandidateQuery) ([]Candidate, error) {
	filter := docstore.Filter{
		In: map[string][]string{
			"status": {string(models.ClusterStatusCandidate), string(models.ClusterStatusPending)},
		},
		NotOlder: map[string]time.Time{"updated_at": q.UpdatedAfter},
		Below:    map[string]float64{"ticket_count": float64(q.MaxMembers)},
		Above:    map[string]float64{"open_count": 0},
	}
	if q.CustomerID != "" {
		filter.Equals = map[string]string{"customer_id": q.CustomerID}
	}

	var all []Candidate
	for _, pk := range pks {
		matches, err := s.c.VectorTopK(ctx, pk, q.TopK, filter, q.Vector)
		if err != nil {
			return nil, shared.Wrap(shared.KindStoreError, "", err, "vector search partition %s", pk)
		}
		for _, m := range matches {
			cl, err := decodeCluster(m.Doc)
			if err != nil {
				return nil, err
			}
			all = append(all, Candidate{Cluster: cl, Similarity: m.Similarity})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if q.TopK > 0 && len(all) > q.TopK {
		all = all[:q.TopK]
	}
	return all, nil
}

// ListByStatus returns the clusters in a partition, optionally restricted
// to a status set.
func (s *ClusterStore) ListByStatus(ctx context.Context, pk string, statuses ...models.ClusterStatus) ([]*models.Cluster, error) {
	filter := docstore.Filter{}
	if len(statuses) > 0 {
		set := make([]string, len(statuses))
		for i, st := range statuses {
			set[i] = string(st)
		}
		filter.In = map[string][]string{"status": set}
	}
	docs, err := s.c.Query(ctx, pk, filter)
	if err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "list clusters in %s", pk)
	}
	out := make([]*models.Cluster, 0, len(docs))
	for _, doc := range docs {
		cl, err := decodeCluster(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, nil
}

// ListStale returns candidate/pending clusters not updated since cutoff,
// for the expiry sweeper.
func (s *ClusterStore) ListStale(ctx context.Context, pk string, cutoff time.Time) ([]*models.Cluster, error) {
	open, err := s.ListByStatus(ctx, pk, models.ClusterStatusCandidate, models.ClusterStatusPending)
	if err != nil {
		return nil, err
	}
	var stale []*models.Cluster
	for _, cl := range open {
		if cl.UpdatedAt.Before(cutoff) {
			stale = append(stale, cl)
		}
	}
	return stale, nil
}

func decodeCluster(doc *docstore.Document) (*models.Cluster, error) {
	var cl models.Cluster
	if err := json.Unmarshal(doc.Body, &cl); err != nil {
		return nil, shared.Wrap(shared.KindStoreError, "", err, "decode cluster %s", doc.ID)
	}
	cl.ETag = doc.ETag
	// Invariant: ticket_count always equals len(members)
	if cl.TicketCount != len(cl.Members) {
		return nil, shared.E(shared.KindStoreError, "",
			"cluster %s count mismatch: ticket_count=%s members=%s",
			cl.ID, strconv.Itoa(cl.TicketCount), strconv.Itoa(len(cl.Members)))
	}
	return &cl, nil
}
