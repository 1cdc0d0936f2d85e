// Package embedding holds helpers shared by the embedding provider adapters.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// maxBodyInError bounds how much of a response body is quoted in errors.
const maxBodyInError = 512

// StatusError classifies a non-200 provider response.
// 429 and 5xx are transient; other statuses are permanent.
func StatusError(provider string, status int, body []byte) error {
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("%s: status %d: %s: %w", provider, status, body, domain.ErrTransientProvider)
	}
	return fmt.Errorf("%s: status %d: %s", provider, status, body)
}

// TransportError classifies a failed HTTP round trip as a connection error.
// Context cancellation is returned as is so callers stop retrying.
func TransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	return fmt.Errorf("%s: send request: %v: %w", provider, err, domain.ErrConnection)
}
