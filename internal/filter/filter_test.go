package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestCompile_Invalid(t *testing.T) {
	for _, src := range []string{
		`book_id ==`,
		`unknown_field == 1`,
		`chapter + 1`,
		`book_id == 42`,
	} {
		_, err := Compile(src)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, src)
	}
}

func TestFilter_Match(t *testing.T) {
	doc := domain.IndexedDocument{
		ID:        "42_ch3_0_1",
		BookID:    "42",
		Title:     "Dune",
		Source:    "mongo",
		Chapter:   3,
		Timestamp: 1_700_000_000_000,
	}

	tests := []struct {
		src  string
		want bool
	}{
		{``, true},
		{`book_id == "42"`, true},
		{`book_id == "43"`, false},
		{`book_id == "42" and chapter > 2`, true},
		{`book_id == "42" && chapter > 3`, false},
		{`source in ["mongo", "pdf"]`, true},
		{`source not in ["postgres"]`, true},
		{`not (chapter == 3) || title == "Dune"`, true},
		{`timestamp >= 1700000000000`, true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f, err := Compile(tt.src)
			require.NoError(t, err)
			got, err := f.Match(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEquals(t *testing.T) {
	assert.Equal(t, `book_id == "42"`, Equals("book_id", "42"))
	assert.Equal(t, `book_id == "a\"b"`, Equals("book_id", `a"b`))

	f, err := Compile(Equals("book_id", `a"b`))
	require.NoError(t, err)
	ok, err := f.Match(domain.IndexedDocument{BookID: `a"b`})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilter_Empty(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	assert.True(t, f.Empty())
	assert.Equal(t, "", f.String())
}
