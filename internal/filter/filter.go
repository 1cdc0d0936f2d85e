// Package filter compiles boolean filter expressions over the scalar fields
// of indexed documents, e.g. `book_id == "42" and chapter > 2`.
//
// The accepted syntax is the subset shared by Milvus boolean expressions and
// expr-lang: comparisons, `in`/`not in` lists, `and`/`or`/`not`, `&&`/`||`.
package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Filter is a compiled expression.
type Filter struct {
	src     string
	program *vm.Program
}

// env returns the typed variable set used at compile time.
func env(d domain.IndexedDocument) map[string]any {
	return map[string]any{
		domain.FieldID:         d.ID,
		domain.FieldBookID:     d.BookID,
		domain.FieldTitle:      d.Title,
		domain.FieldAuthor:     d.Author,
		domain.FieldContent:    d.Content,
		domain.FieldSource:     d.Source,
		domain.FieldChapter:    d.Chapter,
		domain.FieldPageNumber: d.PageNumber,
		domain.FieldTimestamp:  int(d.Timestamp),
	}
}

// Compile parses src. An empty or blank expression compiles to a filter
// that matches everything. Invalid expressions wrap domain.ErrInvalidInput.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(src, expr.Env(env(domain.IndexedDocument{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidInput, src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// Empty reports whether the filter matches everything.
func (f *Filter) Empty() bool {
	return f.program == nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.src
}

// Match evaluates the filter against d.
func (f *Filter) Match(d domain.IndexedDocument) (bool, error) {
	if f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, env(d))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Equals builds an equality expression for a string field with proper quoting.
func Equals(field, value string) string {
	return fmt.Sprintf("%s == %q", field, value)
}
