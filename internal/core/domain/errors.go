package domain

import "errors"

// Domain errors represent pipeline failures by kind.
// Adapters wrap them so callers can classify with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates an index operation was attempted before
	// the gateway finished initialisation. It is never retried.
	ErrNotInitialized = errors.New("collection not initialized")

	// ErrConnection indicates a broker, provider or index was unreachable.
	// Retried with capped backoff; fatal only at startup.
	ErrConnection = errors.New("connection error")

	// ErrTransientProvider indicates a rate-limit or 5xx answer from the
	// embedding provider. Retried per call.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrDimensionMismatch indicates a vector does not match the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConsumerRunning indicates Run was called on a consumer that is already running.
	ErrConsumerRunning = errors.New("consumer already running")

	// ErrEmbeddingUnavailable indicates vectors could not be produced for
	// some texts after retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexIncomplete indicates some chunks were not indexed for a
	// reason none of the other kinds describe.
	ErrIndexIncomplete = errors.New("index incomplete")
)

// IsRetryable reports whether err is a connection or transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTransientProvider)
}
