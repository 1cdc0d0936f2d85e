package plaintext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

func TestExtensions(t *testing.T) {
	assert.Equal(t, []string{".txt", ".text"}, New().Extensions())
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain", []byte("CHAPTER I\nCall me Ishmael."), "CHAPTER I\nCall me Ishmael."},
		{"byte order mark", append([]byte{0xEF, 0xBB, 0xBF}, "Hello"...), "Hello"},
		{"windows line endings", []byte("one\r\ntwo\r\n"), "one\ntwo\n"},
		{"old mac line endings", []byte("one\rtwo"), "one\ntwo"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Normalise(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Empty(t, got.Title)
		})
	}
}

func TestNormalise_Binary(t *testing.T) {
	_, err := New().Normalise([]byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
