package plaintext

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Normaliser handles plain text files such as OCR output.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".txt", ".text"}
}

// Normalise validates UTF-8, drops a byte order mark and unifies line endings.
func (n *Normaliser) Normalise(data []byte) (driven.NormaliseResult, error) {
	text, err := Decode(data)
	if err != nil {
		return driven.NormaliseResult{}, err
	}
	return driven.NormaliseResult{Text: text}, nil
}

// Decode returns data as a string with LF line endings.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bom)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not UTF-8 text", domain.ErrInvalidInput)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n"), nil
}
