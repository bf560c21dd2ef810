package domain

import "errors"

// Failure classes of the ingestion and search pipelines. Everything upstream
// of persistence aborts the request; everything downstream degrades search
// coverage without failing the already-durable write.
var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrInvalidQuery   = errors.New("invalid query")
	ErrInvalidUser    = errors.New("invalid user")

	ErrPersistenceFailed = errors.New("message persistence failed")

	ErrEmbeddingUnavailable = errors.New("embedding model unavailable")
	ErrEmbeddingMalformed   = errors.New("embedding response malformed")

	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrSearchUnavailable = errors.New("semantic search unavailable")

	ErrNotFound = errors.New("not found")
)
