package driven

// Normaliser turns the bytes of an uploaded file into plain text for the
// chapter detector and chunker. Each normaliser handles a set of file
// extensions (e.g. ".md").
type Normaliser interface {
	// Extensions returns the lower-case extensions handled, with the dot.
	Extensions() []string

	// Normalise returns the document text. Input that is not text wraps
	// domain.ErrInvalidInput.
	Normalise(data []byte) (NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Text is the plain text to index.
	Text string

	// Title is a title found in the content, if any.
	Title string
}
