package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/vector/sqlite/migrations"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ingest/internal/filter"
)

// Verify interface compliance.
var _ driven.VectorBackend = (*Backend)(nil)

// DefaultFileName is the database file created inside the data directory.
const DefaultFileName = "vectors.db"

// Backend stores collections and vectors in a SQLite database.
type Backend struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// New creates a backend for the database at path. Nothing is opened until
// Connect. If path is empty, defaults to ~/.sercha/data/vectors.db.
func New(path string) *Backend {
	return &Backend{path: path}
}

// Path returns the database file path.
func (b *Backend) Path() string {
	return b.path
}

// Connect opens the database and runs pending migrations.
func (b *Backend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}

	if b.path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		b.path = filepath.Join(home, ".sercha", "data", DefaultFileName)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", b.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return fmt.Errorf("opening database: %v: %w", err, domain.ErrConnection)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("opening database: %v: %w", err, domain.ErrConnection)
	}

	if err := migrate(ctx, db, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	b.db = db
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Backend) conn() (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil, fmt.Errorf("sqlite: not connected: %w", domain.ErrConnection)
	}
	return b.db, nil
}

// migrate runs all pending migrations and records their versions.
func migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// HasCollection reports whether the collection exists.
func (b *Backend) HasCollection(ctx context.Context, name string) (bool, error) {
	db, err := b.conn()
	if err != nil {
		return false, err
	}

	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM collections WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking collection: %w", err)
	}
	return true, nil
}

// CreateCollection records the collection and its schema.
func (b *Backend) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO collections (name, description, dimension, fields)
		VALUES (?, ?, ?, ?)
	`, schema.Name, schema.Description, schema.Dimension(), string(fieldsJSON))
	if isConstraintError(err) {
		return fmt.Errorf("collection %s: %w", schema.Name, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

// CreateIndex records the index parameters. Search is exact, so only the
// metric affects results.
func (b *Backend) CreateIndex(ctx context.Context, collection string, params domain.IndexParams) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshalling index params: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE collections SET index_type = ?, metric = ?, index_params = ? WHERE name = ?
	`, params.Type, string(params.Metric), string(paramsJSON), collection)
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	return requireAffected(res, collection)
}

// Load marks the collection searchable.
func (b *Backend) Load(ctx context.Context, collection string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, "UPDATE collections SET load_state = ? WHERE name = ?",
		string(domain.LoadStateLoaded), collection)
	if err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}
	return requireAffected(res, collection)
}

// LoadState returns the collection's load state.
func (b *Backend) LoadState(ctx context.Context, collection string) (domain.LoadState, error) {
	db, err := b.conn()
	if err != nil {
		return "", err
	}

	var state string
	err = db.QueryRowContext(ctx, "SELECT load_state FROM collections WHERE name = ?", collection).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoadStateNotExist, nil
	}
	if err != nil {
		return "", fmt.Errorf("getting load state: %w", err)
	}
	return domain.LoadState(state), nil
}

const insertSQL = `
	INSERT INTO vectors (collection, id, vector, book_id, title, author, content, source, chapter, page_number, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertSQL = insertSQL + `
	ON CONFLICT(collection, id) DO UPDATE SET
		vector = excluded.vector,
		book_id = excluded.book_id,
		title = excluded.title,
		author = excluded.author,
		content = excluded.content,
		source = excluded.source,
		chapter = excluded.chapter,
		page_number = excluded.page_number,
		timestamp = excluded.timestamp
`

// Insert appends documents. A duplicate id fails the whole batch with
// domain.ErrAlreadyExists.
func (b *Backend) Insert(ctx context.Context, collection string, docs []domain.IndexedDocument) error {
	return b.write(ctx, collection, docs, insertSQL)
}

// Upsert inserts or overwrites documents by id.
func (b *Backend) Upsert(ctx context.Context, collection string, docs []domain.IndexedDocument) error {
	return b.write(ctx, collection, docs, upsertSQL)
}

func (b *Backend) write(ctx context.Context, collection string, docs []domain.IndexedDocument, query string) error {
	if len(docs) == 0 {
		return nil
	}

	db, err := b.conn()
	if err != nil {
		return err
	}
	if ok, err := b.HasCollection(ctx, collection); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		_, err := stmt.ExecContext(ctx, collection, d.ID, float32SliceToBytes(d.Vector),
			d.BookID, d.Title, d.Author, d.Content, d.Source, d.Chapter, d.PageNumber, d.Timestamp)
		if isConstraintError(err) {
			return fmt.Errorf("document %s: %w", d.ID, domain.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("writing document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Search scores every matching row against query and returns the best TopK.
func (b *Backend) Search(ctx context.Context, collection string, query []float32, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}

	var state string
	var metricCol sql.NullString
	err = db.QueryRowContext(ctx, "SELECT load_state, metric FROM collections WHERE name = ?", collection).
		Scan(&state, &metricCol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	if domain.LoadState(state) != domain.LoadStateLoaded {
		return nil, fmt.Errorf("collection %s is not loaded", collection)
	}

	metric := domain.MetricIP
	if m, ok := domain.ParseMetric(metricCol.String); ok {
		metric = m
	}

	f, err := filter.Compile(opts.Filter)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, vector, book_id, title, author, content, source, chapter, page_number, timestamp
		FROM vectors WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var d domain.IndexedDocument
		var blob []byte
		if err := rows.Scan(&d.ID, &blob, &d.BookID, &d.Title, &d.Author, &d.Content,
			&d.Source, &d.Chapter, &d.PageNumber, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}

		ok, err := f.Match(d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(query) {
			return nil, fmt.Errorf("document %s has %d dimensions, query has %d: %w",
				d.ID, len(vec), len(query), domain.ErrDimensionMismatch)
		}

		hits = append(hits, domain.SearchHit{ID: d.ID, Score: score(metric, query, vec), Document: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if metric.HigherIsBetter() {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Score < hits[j].Score
	})

	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

// Delete removes every document matching expr. An empty expression is
// rejected rather than wiping the collection.
func (b *Backend) Delete(ctx context.Context, collection, expr string) error {
	db, err := b.conn()
	if err != nil {
		return err
	}

	f, err := filter.Compile(expr)
	if err != nil {
		return err
	}
	if f.Empty() {
		return fmt.Errorf("%w: delete requires a filter", domain.ErrInvalidInput)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, book_id, title, author, content, source, chapter, page_number, timestamp
		FROM vectors WHERE collection = ?
	`, collection)
	if err != nil {
		return fmt.Errorf("querying vectors: %w", err)
	}

	var ids []string
	for rows.Next() {
		var d domain.IndexedDocument
		if err := rows.Scan(&d.ID, &d.BookID, &d.Title, &d.Author, &d.Content,
			&d.Source, &d.Chapter, &d.PageNumber, &d.Timestamp); err != nil {
			rows.Close()
			return fmt.Errorf("scanning vector: %w", err)
		}
		ok, err := f.Match(d)
		if err != nil {
			rows.Close()
			return err
		}
		if ok {
			ids = append(ids, d.ID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating vectors: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vectors WHERE collection = ? AND id = ?", collection, id); err != nil {
			return fmt.Errorf("deleting document %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Count returns the number of entities in the collection.
func (b *Backend) Count(ctx context.Context, collection string) (int64, error) {
	db, err := b.conn()
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors WHERE collection = ?", collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result, collection string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	return nil
}

func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

func score(metric domain.Metric, a, b []float32) float64 {
	switch metric {
	case domain.MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum
	case domain.MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	default:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	}
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
