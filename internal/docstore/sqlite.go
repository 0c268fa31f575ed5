package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gotrs-io/dedup-ce/internal/vectors"
)

// SQLStore is a SQLite-backed document store. Documents are JSON rows keyed
// by (container, pk, id); filters are evaluated with the JSON1 extension.
type SQLStore struct {
	db *sqlx.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS documents (
	container TEXT NOT NULL,
	id        TEXT NOT NULL,
	pk        TEXT NOT NULL,
	etag      TEXT NOT NULL,
	body      TEXT NOT NULL,
	PRIMARY KEY (container, pk, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_container_pk ON documents (container, pk);
`

// OpenSQLite opens (and if needed initializes) a SQLite document store.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// The sqlite driver serializes writers; one connection avoids
	// SQLITE_BUSY under concurrent replace attempts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// Container returns a typed view over one document collection.
func (s *SQLStore) Container(name string, opts ContainerOptions) *SQLContainer {
	return &SQLContainer{store: s, name: name, opts: opts}
}

// SQLContainer implements Container on top of SQLStore.
type SQLContainer struct {
	store *SQLStore
	name  string
	opts  ContainerOptions
}

var fieldNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (c *SQLContainer) jsonField(field string) (string, error) {
	if !c.opts.filterable(field) || !fieldNameRe.MatchString(field) {
		return "", fmt.Errorf("docstore: field %q is not filterable", field)
	}
	// field comes from the container's declared filter list, never from
	// request input
	return fmt.Sprintf("json_extract(body, '$.%s')", field), nil
}

func (c *SQLContainer) PointRead(ctx context.Context, id, pk string) (*Document, error) {
	var row struct {
		ETag string `db:"etag"`
		Body string `db:"body"`
	}
	err := c.store.db.GetContext(ctx, &row,
		`SELECT etag, body FROM documents WHERE container = ? AND pk = ? AND id = ?`,
		c.name, pk, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("point read %s/%s: %w", pk, id, err)
	}
	return &Document{ID: id, PK: pk, ETag: row.ETag, Body: []byte(row.Body)}, nil
}

func (c *SQLContainer) Create(ctx context.Context, doc *Document) (*Document, error) {
	fields, err := decodeFields(doc.Body)
	if err != nil {
		return nil, err
	}
	tx, err := c.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	for _, uf := range c.opts.UniqueFields {
		want, _ := fields[uf].(string)
		if want == "" {
			continue
		}
		expr, ferr := c.uniqueField(uf)
		if ferr != nil {
			return nil, ferr
		}
		var count int
		q := fmt.Sprintf(`SELECT COUNT(*) FROM documents WHERE container = ? AND pk = ? AND %s = ?`, expr)
		if err := tx.GetContext(ctx, &count, q, c.name, doc.PK, want); err != nil {
			return nil, fmt.Errorf("unique check %s: %w", uf, err)
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrUniqueViolation, uf, want)
		}
	}

	etag := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (container, id, pk, etag, body) VALUES (?, ?, ?, ?, ?)`,
		c.name, doc.ID, doc.PK, etag, string(doc.Body))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: id %s", ErrUniqueViolation, doc.ID)
		}
		return nil, fmt.Errorf("insert %s/%s: %w", doc.PK, doc.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return &Document{ID: doc.ID, PK: doc.PK, ETag: etag, Body: doc.Body}, nil
}

func (c *SQLContainer) uniqueField(field string) (string, error) {
	if !fieldNameRe.MatchString(field) {
		return "", fmt.Errorf("docstore: bad unique field %q", field)
	}
	return fmt.Sprintf("json_extract(body, '$.%s')", field), nil
}

func (c *SQLContainer) Upsert(ctx context.Context, doc *Document) (*Document, error) {
	if _, err := decodeFields(doc.Body); err != nil {
		return nil, err
	}
	etag := uuid.New().String()
	_, err := c.store.db.ExecContext(ctx,
		`INSERT INTO documents (container, id, pk, etag, body) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (container, pk, id) DO UPDATE SET etag = excluded.etag, body = excluded.body`,
		c.name, doc.ID, doc.PK, etag, string(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", doc.PK, doc.ID, err)
	}
	return &Document{ID: doc.ID, PK: doc.PK, ETag: etag, Body: doc.Body}, nil
}

func (c *SQLContainer) Replace(ctx context.Context, id, pk string, body []byte, ifMatch string) (*Document, error) {
	if _, err := decodeFields(body); err != nil {
		return nil, err
	}
	tx, err := c.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current,
		`SELECT etag FROM documents WHERE container = ? AND pk = ? AND id = ?`, c.name, pk, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replace read %s/%s: %w", pk, id, err)
	}
	if ifMatch != "" && current != ifMatch {
		return nil, ErrPreconditionFailed
	}

	etag := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET etag = ?, body = ? WHERE container = ? AND pk = ? AND id = ?`,
		etag, string(body), c.name, pk, id)
	if err != nil {
		return nil, fmt.Errorf("replace write %s/%s: %w", pk, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return &Document{ID: id, PK: pk, ETag: etag, Body: body}, nil
}

func (c *SQLContainer) Query(ctx context.Context, pk string, f Filter) ([]*Document, error) {
	docs, err := c.filtered(ctx, pk, f)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (c *SQLContainer) VectorTopK(ctx context.Context, pk string, k int, f Filter, vector []float32) ([]VectorMatch, error) {
	if c.opts.VectorField == "" {
		return nil, fmt.Errorf("docstore: container has no vector field")
	}
	docs, err := c.filtered(ctx, pk, f)
	if err != nil {
		return nil, err
	}
	var out []VectorMatch
	for _, d := range docs {
		fields, err := decodeFields(d.Body)
		if err != nil {
			continue
		}
		v := fieldVector(fields, c.opts.VectorField)
		if v == nil {
			continue
		}
		out = append(out, VectorMatch{Doc: d, Similarity: vectors.Cosine(vector, v)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// filtered pushes equality and numeric predicates into SQL and evaluates
// timestamp bounds in Go: RFC3339 strings with mixed fractional precision
// do not compare lexicographically.
func (c *SQLContainer) filtered(ctx context.Context, pk string, f Filter) ([]*Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, etag, body FROM documents WHERE container = ? AND pk = ?`)
	args := []interface{}{c.name, pk}

	for field, want := range f.Equals {
		expr, err := c.jsonField(field)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprintf(" AND %s = ?", expr))
		args = append(args, want)
	}
	for field, set := range f.In {
		expr, err := c.jsonField(field)
		if err != nil {
			return nil, err
		}
		if len(set) == 0 {
			return nil, nil
		}
		sb.WriteString(fmt.Sprintf(" AND %s IN (?%s)", expr, strings.Repeat(", ?", len(set)-1)))
		for _, v := range set {
			args = append(args, v)
		}
	}
	for field, bound := range f.Below {
		expr, err := c.jsonField(field)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprintf(" AND %s < ?", expr))
		args = append(args, bound)
	}
	for field, bound := range f.Above {
		expr, err := c.jsonField(field)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprintf(" AND %s > ?", expr))
		args = append(args, bound)
	}

	rows := []struct {
		ID   string `db:"id"`
		ETag string `db:"etag"`
		Body string `db:"body"`
	}{}
	if err := c.store.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}

	var out []*Document
	for _, r := range rows {
		doc := &Document{ID: r.ID, PK: pk, ETag: r.ETag, Body: []byte(r.Body)}
		if len(f.NotOlder) > 0 {
			fields, err := decodeFields(doc.Body)
			if err != nil {
				continue
			}
			ok := true
			for field, cutoff := range f.NotOlder {
				if !c.opts.filterable(field) {
					return nil, fmt.Errorf("docstore: field %q is not filterable", field)
				}
				ts := fieldTime(fields, field)
				if ts.IsZero() || ts.Before(cutoff) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
