package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals a malformed search, ingest or admin request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNamespaceRequired signals a missing or malformed namespace.
	ErrNamespaceRequired = errors.New("namespace is required")
	// ErrRecordNotFound signals a missing record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingUnavailable signals that the embedding provider is unreachable
	// or returned an embedding of the wrong shape.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding token budget exhausted")
	// ErrGenerationUnavailable signals a failed text-generation call.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")

	// ErrIndexUnavailable signals that the vector index could not serve a query.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrIndexNotFound signals a missing vector index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexConfigConflict signals an existing index with a different dimension or metric.
	ErrIndexConfigConflict = errors.New("index config conflict")

	// ErrChunkScoringFailed signals a rerank chunk that produced no usable scores.
	ErrChunkScoringFailed = errors.New("chunk scoring failed")
)

// IndexConfigConflictError wraps ErrIndexConfigConflict with both configurations.
type IndexConfigConflictError struct {
	Name      string
	Existing  IndexSpec
	Requested IndexSpec
}

func (e *IndexConfigConflictError) Error() string {
	return fmt.Sprintf("%s: index %q exists with dimension=%d metric=%s, requested dimension=%d metric=%s",
		ErrIndexConfigConflict.Error(), e.Name,
		e.Existing.Dimension, e.Existing.Metric,
		e.Requested.Dimension, e.Requested.Metric,
	)
}

func (e *IndexConfigConflictError) Unwrap() error { return ErrIndexConfigConflict }

// NewIndexConfigConflict creates an index configuration conflict error.
func NewIndexConfigConflict(name string, existing, requested IndexSpec) error {
	return &IndexConfigConflictError{Name: name, Existing: existing, Requested: requested}
}
