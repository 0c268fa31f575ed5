package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gotrs-io/dedup-ce/internal/vectors"
)

// MemoryContainer is an in-memory Container used by tests and the memory
// store driver. Reads return copies; writers never share state with callers.
type MemoryContainer struct {
	opts ContainerOptions

	mu         sync.RWMutex
	partitions map[string]map[string]*memoryDoc
}

type memoryDoc struct {
	body   []byte
	etag   string
	fields map[string]interface{}
}

// NewMemoryContainer creates an empty in-memory container.
func NewMemoryContainer(opts ContainerOptions) *MemoryContainer {
	return &MemoryContainer{
		opts:       opts,
		partitions: make(map[string]map[string]*memoryDoc),
	}
}

func (c *MemoryContainer) PointRead(ctx context.Context, id, pk string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.partitions[pk][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(id, pk, d), nil
}

func (c *MemoryContainer) Create(ctx context.Context, doc *Document) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := decodeFields(doc.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	part := c.partitions[doc.PK]
	if part == nil {
		part = make(map[string]*memoryDoc)
		c.partitions[doc.PK] = part
	}
	if _, exists := part[doc.ID]; exists {
		return nil, fmt.Errorf("%w: id %s", ErrUniqueViolation, doc.ID)
	}
	for _, uf := range c.opts.UniqueFields {
		want, _ := fields[uf].(string)
		if want == "" {
			continue
		}
		for id, other := range part {
			if got, _ := other.fields[uf].(string); got == want {
				return nil, fmt.Errorf("%w: %s=%q already held by %s", ErrUniqueViolation, uf, want, id)
			}
		}
	}
	stored := &memoryDoc{body: append([]byte(nil), doc.Body...), etag: uuid.New().String(), fields: fields}
	part[doc.ID] = stored
	return copyDoc(doc.ID, doc.PK, stored), nil
}

func (c *MemoryContainer) Upsert(ctx context.Context, doc *Document) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := decodeFields(doc.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	part := c.partitions[doc.PK]
	if part == nil {
		part = make(map[string]*memoryDoc)
		c.partitions[doc.PK] = part
	}
	stored := &memoryDoc{body: append([]byte(nil), doc.Body...), etag: uuid.New().String(), fields: fields}
	part[doc.ID] = stored
	return copyDoc(doc.ID, doc.PK, stored), nil
}

func (c *MemoryContainer) Replace(ctx context.Context, id, pk string, body []byte, ifMatch string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := decodeFields(body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.partitions[pk][id]
	if !ok {
		return nil, ErrNotFound
	}
	if ifMatch != "" && d.etag != ifMatch {
		return nil, ErrPreconditionFailed
	}
	d.body = append([]byte(nil), body...)
	d.etag = uuid.New().String()
	d.fields = fields
	return copyDoc(id, pk, d), nil
}

func (c *MemoryContainer) Query(ctx context.Context, pk string, f Filter) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.checkFilter(f); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Document
	for id, d := range c.partitions[pk] {
		if matches(d.fields, f) {
			out = append(out, copyDoc(id, pk, d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryContainer) VectorTopK(ctx context.Context, pk string, k int, f Filter, vector []float32) ([]VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.checkFilter(f); err != nil {
		return nil, err
	}
	if c.opts.VectorField == "" {
		return nil, fmt.Errorf("docstore: container has no vector field")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []VectorMatch
	for id, d := range c.partitions[pk] {
		if !matches(d.fields, f) {
			continue
		}
		v := fieldVector(d.fields, c.opts.VectorField)
		if v == nil {
			continue
		}
		out = append(out, VectorMatch{Doc: copyDoc(id, pk, d), Similarity: vectors.Cosine(vector, v)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (c *MemoryContainer) checkFilter(f Filter) error {
	for field := range f.Equals {
		if !c.opts.filterable(field) {
			return fmt.Errorf("docstore: field %q is not filterable", field)
		}
	}
	for field := range f.In {
		if !c.opts.filterable(field) {
			return fmt.Errorf("docstore: field %q is not filterable", field)
		}
	}
	for field := range f.NotOlder {
		if !c.opts.filterable(field) {
			return fmt.Errorf("docstore: field %q is not filterable", field)
		}
	}
	for field := range f.Below {
		if !c.opts.filterable(field) {
			return fmt.Errorf("docstore: field %q is not filterable", field)
		}
	}
	for field := range f.Above {
		if !c.opts.filterable(field) {
			return fmt.Errorf("docstore: field %q is not filterable", field)
		}
	}
	return nil
}

func copyDoc(id, pk string, d *memoryDoc) *Document {
	return &Document{ID: id, PK: pk, ETag: d.etag, Body: append([]byte(nil), d.body...)}
}

func decodeFields(body []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("docstore: body is not a JSON object: %w", err)
	}
	return m, nil
}

func matches(fields map[string]interface{}, f Filter) bool {
	for field, want := range f.Equals {
		got, _ := fields[field].(string)
		if got != want {
			return false
		}
	}
	for field, set := range f.In {
		got, _ := fields[field].(string)
		found := false
		for _, v := range set {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for field, cutoff := range f.NotOlder {
		ts := fieldTime(fields, field)
		if ts.IsZero() || ts.Before(cutoff) {
			return false
		}
	}
	for field, bound := range f.Below {
		n, ok := fields[field].(float64)
		if !ok || n >= bound {
			return false
		}
	}
	for field, bound := range f.Above {
		n, ok := fields[field].(float64)
		if !ok || n <= bound {
			return false
		}
	}
	return true
}

func fieldTime(fields map[string]interface{}, field string) time.Time {
	s, _ := fields[field].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fieldVector(fields map[string]interface{}, field string) []float32 {
	raw, ok := fields[field].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	v := make([]float32, len(raw))
	for i, e := range raw {
		n, ok := e.(float64)
		if !ok {
			return nil
		}
		v[i] = float32(n)
	}
	return v
}
