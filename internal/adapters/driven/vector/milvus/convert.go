package milvus

import (
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// outputFields are returned with every search hit.
var outputFields = []string{
	domain.FieldBookID,
	domain.FieldTitle,
	domain.FieldAuthor,
	domain.FieldContent,
	domain.FieldSource,
	domain.FieldChapter,
	domain.FieldPageNumber,
	domain.FieldTimestamp,
}

func toEntitySchema(s domain.CollectionSchema) *entity.Schema {
	schema := entity.NewSchema().WithName(s.Name).WithDescription(s.Description)
	for _, f := range s.Fields {
		field := entity.NewField().WithName(f.Name).WithDescription(f.Description)
		switch f.Type {
		case domain.FieldTypeVarChar:
			field = field.WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(f.MaxLength))
		case domain.FieldTypeFloatVector:
			field = field.WithDataType(entity.FieldTypeFloatVector).WithDim(int64(f.Dimension))
		case domain.FieldTypeInt32:
			field = field.WithDataType(entity.FieldTypeInt32)
		case domain.FieldTypeInt64:
			field = field.WithDataType(entity.FieldTypeInt64)
		}
		if f.PrimaryKey {
			field = field.WithIsPrimaryKey(true)
		}
		schema = schema.WithField(field)
	}
	return schema
}

func toMetricType(m domain.Metric) entity.MetricType {
	switch m {
	case domain.MetricCosine:
		return entity.COSINE
	case domain.MetricL2:
		return entity.L2
	default:
		return entity.IP
	}
}

func fromLoadState(s entity.LoadState) domain.LoadState {
	switch s {
	case entity.LoadStateLoaded:
		return domain.LoadStateLoaded
	case entity.LoadStateLoading:
		return domain.LoadStateLoading
	case entity.LoadStateNotLoad:
		return domain.LoadStateNotLoad
	default:
		return domain.LoadStateNotExist
	}
}

// toColumns converts documents into column-major insert data.
// Every vector must have the same dimension.
func toColumns(docs []domain.IndexedDocument) ([]entity.Column, error) {
	n := len(docs)
	dim := len(docs[0].Vector)

	var (
		ids      = make([]string, n)
		vectors  = make([][]float32, n)
		bookIDs  = make([]string, n)
		titles   = make([]string, n)
		authors  = make([]string, n)
		contents = make([]string, n)
		sources  = make([]string, n)
		chapters = make([]int32, n)
		pages    = make([]int32, n)
		stamps   = make([]int64, n)
	)

	for i, d := range docs {
		if len(d.Vector) != dim {
			return nil, fmt.Errorf("document %s has %d dimensions, want %d: %w",
				d.ID, len(d.Vector), dim, domain.ErrDimensionMismatch)
		}
		ids[i] = d.ID
		vectors[i] = d.Vector
		bookIDs[i] = d.BookID
		titles[i] = d.Title
		authors[i] = d.Author
		contents[i] = d.Content
		sources[i] = d.Source
		chapters[i] = int32(d.Chapter)
		pages[i] = int32(d.PageNumber)
		stamps[i] = d.Timestamp
	}

	return []entity.Column{
		entity.NewColumnVarChar(domain.FieldID, ids),
		entity.NewColumnFloatVector(domain.FieldVector, dim, vectors),
		entity.NewColumnVarChar(domain.FieldBookID, bookIDs),
		entity.NewColumnVarChar(domain.FieldTitle, titles),
		entity.NewColumnVarChar(domain.FieldAuthor, authors),
		entity.NewColumnVarChar(domain.FieldContent, contents),
		entity.NewColumnVarChar(domain.FieldSource, sources),
		entity.NewColumnInt32(domain.FieldChapter, chapters),
		entity.NewColumnInt32(domain.FieldPageNumber, pages),
		entity.NewColumnInt64(domain.FieldTimestamp, stamps),
	}, nil
}

// toHits reads ids, scores and output fields of one query's result.
func toHits(r client.SearchResult) ([]domain.SearchHit, error) {
	hits := make([]domain.SearchHit, 0, r.ResultCount)
	for i := 0; i < r.ResultCount; i++ {
		id, err := r.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("milvus: read id: %w", err)
		}
		doc := domain.IndexedDocument{ID: id}
		doc.BookID = stringField(r.Fields, domain.FieldBookID, i)
		doc.Title = stringField(r.Fields, domain.FieldTitle, i)
		doc.Author = stringField(r.Fields, domain.FieldAuthor, i)
		doc.Content = stringField(r.Fields, domain.FieldContent, i)
		doc.Source = stringField(r.Fields, domain.FieldSource, i)
		doc.Chapter = int(intField(r.Fields, domain.FieldChapter, i))
		doc.PageNumber = int(intField(r.Fields, domain.FieldPageNumber, i))
		doc.Timestamp = intField(r.Fields, domain.FieldTimestamp, i)

		var score float64
		if i < len(r.Scores) {
			score = float64(r.Scores[i])
		}
		hits = append(hits, domain.SearchHit{ID: id, Score: score, Document: doc})
	}
	return hits, nil
}

func stringField(rs client.ResultSet, name string, i int) string {
	col := rs.GetColumn(name)
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}

func intField(rs client.ResultSet, name string, i int) int64 {
	col := rs.GetColumn(name)
	if col == nil {
		return 0
	}
	v, err := col.GetAsInt64(i)
	if err != nil {
		return 0
	}
	return v
}
