package domain

import "strings"

// Schema field bounds.
const (
	MaxIDLength      = 256
	MaxBookIDLength  = 128
	MaxTitleLength   = 512
	MaxAuthorLength  = 256
	MaxContentLength = 4096
	MaxSourceLength  = 64
)

// Field names of the fixed collection schema.
const (
	FieldID         = "id"
	FieldVector     = "vector"
	FieldBookID     = "book_id"
	FieldTitle      = "title"
	FieldAuthor     = "author"
	FieldContent    = "content"
	FieldSource     = "source"
	FieldChapter    = "chapter"
	FieldPageNumber = "page_number"
	FieldTimestamp  = "timestamp"
)

// FieldType is the storage type of a schema field.
type FieldType string

// Supported field types.
const (
	FieldTypeVarChar     FieldType = "varchar"
	FieldTypeFloatVector FieldType = "float_vector"
	FieldTypeInt32       FieldType = "int32"
	FieldTypeInt64       FieldType = "int64"
)

// FieldSchema describes one field of the collection.
type FieldSchema struct {
	Name        string
	Type        FieldType
	PrimaryKey  bool
	MaxLength   int // varchar only
	Dimension   int // float_vector only
	Description string
}

// CollectionSchema is the fixed schema of the book embeddings collection.
type CollectionSchema struct {
	Name        string
	Description string
	Fields      []FieldSchema
}

// NewCollectionSchema returns the book embeddings schema for the given
// collection name and vector dimension.
func NewCollectionSchema(name string, dimension int) CollectionSchema {
	return CollectionSchema{
		Name:        name,
		Description: "Book embeddings with metadata for retrieval",
		Fields: []FieldSchema{
			{Name: FieldID, Type: FieldTypeVarChar, PrimaryKey: true, MaxLength: MaxIDLength,
				Description: "Unique identifier: {book_id}_ch{chapter}_{chunk_index}_{timestamp}"},
			{Name: FieldVector, Type: FieldTypeFloatVector, Dimension: dimension, Description: "Embedding vector"},
			{Name: FieldBookID, Type: FieldTypeVarChar, MaxLength: MaxBookIDLength, Description: "Book identifier"},
			{Name: FieldTitle, Type: FieldTypeVarChar, MaxLength: MaxTitleLength, Description: "Book title"},
			{Name: FieldAuthor, Type: FieldTypeVarChar, MaxLength: MaxAuthorLength, Description: "Book author"},
			{Name: FieldContent, Type: FieldTypeVarChar, MaxLength: MaxContentLength, Description: "Text chunk content"},
			{Name: FieldSource, Type: FieldTypeVarChar, MaxLength: MaxSourceLength, Description: "Data source: postgres/mongo/pdf"},
			{Name: FieldChapter, Type: FieldTypeInt32, Description: "Chapter number (0 if not applicable)"},
			{Name: FieldPageNumber, Type: FieldTypeInt32, Description: "Page number (0 if not applicable)"},
			{Name: FieldTimestamp, Type: FieldTypeInt64, Description: "Unix milliseconds of ingestion"},
		},
	}
}

// Dimension returns the vector field dimension, or 0 if the schema has none.
func (s CollectionSchema) Dimension() int {
	for _, f := range s.Fields {
		if f.Type == FieldTypeFloatVector {
			return f.Dimension
		}
	}
	return 0
}

// ScalarFieldNames lists every non-vector field, in schema order.
func (s CollectionSchema) ScalarFieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type != FieldTypeFloatVector {
			names = append(names, f.Name)
		}
	}
	return names
}

// Metric is the similarity metric used by the index.
type Metric string

// Supported metrics.
const (
	MetricIP     Metric = "IP"
	MetricCosine Metric = "COSINE"
	MetricL2     Metric = "L2"
)

// ParseMetric parses a metric name case-insensitively.
func ParseMetric(s string) (Metric, bool) {
	switch m := Metric(strings.ToUpper(strings.TrimSpace(s))); m {
	case MetricIP, MetricCosine, MetricL2:
		return m, true
	default:
		return "", false
	}
}

// HigherIsBetter reports whether larger scores mean more similar.
func (m Metric) HigherIsBetter() bool {
	return m != MetricL2
}

// IndexTypeHNSW is the graph-based approximate nearest-neighbour index.
const IndexTypeHNSW = "HNSW"

// IndexParams configures the approximate nearest-neighbour index.
type IndexParams struct {
	Type           string
	Metric         Metric
	M              int // graph connectivity
	EfConstruction int // build quality
}

// LoadState is the searchable state of a collection.
type LoadState string

// Collection load states.
const (
	LoadStateNotLoad  LoadState = "not_loaded"
	LoadStateLoading  LoadState = "loading"
	LoadStateLoaded   LoadState = "loaded"
	LoadStateNotExist LoadState = "not_exist"
)
