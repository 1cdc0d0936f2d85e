package domain

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// TopK is the maximum number of hits (default 5).
	TopK int

	// Filter is an optional boolean expression over scalar fields,
	// e.g. `book_id == "42" and chapter > 2`.
	Filter string

	// Ef overrides the HNSW search breadth; zero uses the configured value.
	Ef int
}

// SearchHit is a single ranked result.
type SearchHit struct {
	ID string

	// Score is the raw metric value: larger is better for IP and COSINE,
	// smaller is better for L2.
	Score float64

	// Document carries the scalar fields. Vector is not populated.
	Document IndexedDocument
}

// IndexStats summarises the state of the collection.
type IndexStats struct {
	Collection string
	Entities   int64
	Loaded     bool
}

// IndexResult aggregates the outcome of indexing a batch. Callers outside
// the pipeline see only these counts, never raw provider errors.
type IndexResult struct {
	Records  int
	Chunks   int
	Embedded int
	Written  int
	Failed   int
}

// Add accumulates other into r.
func (r *IndexResult) Add(other IndexResult) {
	r.Records += other.Records
	r.Chunks += other.Chunks
	r.Embedded += other.Embedded
	r.Written += other.Written
	r.Failed += other.Failed
}
