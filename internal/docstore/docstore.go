// Package docstore defines the partitioned document-store contract the
// dedup core runs against, plus in-memory and SQLite implementations.
// Documents are opaque JSON bodies addressed by (id, partition key); the
// store assigns ETags and enforces per-partition unique keys.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point reads of absent documents.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrPreconditionFailed is returned by Replace when the ETag does not
	// match the stored document.
	ErrPreconditionFailed = errors.New("docstore: etag precondition failed")
	// ErrUniqueViolation is returned by Create when a unique-key policy
	// would be violated within the partition.
	ErrUniqueViolation = errors.New("docstore: unique key violation")
)

// Document is a stored JSON body with its store-assigned metadata.
type Document struct {
	ID   string
	PK   string
	ETag string
	Body []byte
}

// Filter is the fixed predicate vocabulary the core queries with:
// equalities, membership sets, a timestamp lower bound on a field, and
// numeric exclusive bounds. Field names refer to top-level JSON fields and
// must come from the container's declared filter fields.
type Filter struct {
	Equals   map[string]string
	In       map[string][]string
	NotOlder map[string]time.Time // field >= value
	Below    map[string]float64   // field < value
	Above    map[string]float64   // field > value
}

// VectorMatch is one result of a vector top-K search.
type VectorMatch struct {
	Doc        *Document
	Similarity float64
}

// ContainerOptions declares the per-container schema the store needs:
// which fields carry unique keys, which field holds the document vector,
// and which fields queries may filter on.
type ContainerOptions struct {
	UniqueFields []string
	VectorField  string
	FilterFields []string
}

// Container is one document collection. All operations may block on I/O
// and honor ctx cancellation.
type Container interface {
	PointRead(ctx context.Context, id, pk string) (*Document, error)
	Create(ctx context.Context, doc *Document) (*Document, error)
	Upsert(ctx context.Context, doc *Document) (*Document, error)
	Replace(ctx context.Context, id, pk string, body []byte, ifMatch string) (*Document, error)
	Query(ctx context.Context, pk string, f Filter) ([]*Document, error)
	VectorTopK(ctx context.Context, pk string, k int, f Filter, vector []float32) ([]VectorMatch, error)
}

func (o ContainerOptions) filterable(field string) bool {
	for _, f := range o.FilterFields {
		if f == field {
			return true
		}
	}
	return false
}
