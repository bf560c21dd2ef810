package vector

import (
	"context"
	"time"
)

// Payload denormalizes enough of a message to render a search result and to
// filter by conversation participant without a join back to the message store.
type Payload struct {
	Text       string
	SenderID   string
	ReceiverID string
	Timestamp  time.Time
}

// Point carries one message embedding. ID equals the message id, which makes
// upserts idempotent under client resends.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type ScoredPoint struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter restricts a search to points whose sender OR receiver equals
// ParticipantID. It is mandatory at query time; access control depends on it.
type Filter struct {
	ParticipantID string
}

type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, point Point) error
	Search(ctx context.Context, vec []float32, filter Filter, limit int) ([]ScoredPoint, error)
}
