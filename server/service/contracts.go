package service

import (
	"context"

	"semchat/server/domain"
)

// Store and client contracts consumed by the services. The pgx repositories,
// the embedding client and the realtime hub satisfy these; tests substitute
// doubles.

type MessageStore interface {
	Create(ctx context.Context, senderID, receiverID, text string, fileID *string) (domain.Message, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Message, error)
	ListConversation(ctx context.Context, userID, peerID string, limit int) ([]domain.Message, error)
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, name, email string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Broadcaster fans a newly persisted message out to currently connected
// participants. Best effort, at-most-once per live connection.
type Broadcaster interface {
	Publish(message domain.Message)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}
