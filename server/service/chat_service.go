package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "semchat/server/common/log"
	"semchat/server/domain"
	"semchat/server/vector"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	sendIdempotencyTTL = 24 * time.Hour
)

type SendMessageInput struct {
	SenderID    string
	ReceiverID  string
	Text        string
	FileID      *string
	ClientMsgID string
}

// ChatService owns the message ingestion pipeline: validate, persist, embed,
// index, publish. Persistence is the durability boundary; embedding and
// indexing failures degrade search coverage but never fail a durable send.
type ChatService struct {
	messages    MessageStore
	embedder    Embedder
	index       vector.Index
	broadcaster Broadcaster
	events      EventPublisher
	outbox      *IndexOutbox
	redis       *redis.Client
}

func NewChatService(messages MessageStore, embedder Embedder, index vector.Index, broadcaster Broadcaster) *ChatService {
	return &ChatService{
		messages:    messages,
		embedder:    embedder,
		index:       index,
		broadcaster: broadcaster,
	}
}

// WithEvents attaches an AMQP-style event publisher for message.created
// events. Optional; publishing is best effort.
func (s *ChatService) WithEvents(events EventPublisher) *ChatService {
	s.events = events
	return s
}

// WithOutbox attaches the retry queue that picks up messages whose embed or
// index step failed.
func (s *ChatService) WithOutbox(outbox *IndexOutbox) *ChatService {
	s.outbox = outbox
	return s
}

// WithRedis enables client_msg_id de-duplication across resends.
func (s *ChatService) WithRedis(client *redis.Client) *ChatService {
	s.redis = client
	return s
}

func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (domain.Message, error) {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.ClientMsgID = strings.TrimSpace(in.ClientMsgID)
	if in.SenderID == "" || in.ReceiverID == "" || strings.TrimSpace(in.Text) == "" {
		return domain.Message{}, fmt.Errorf("%w: sender, receiver and text are required", domain.ErrInvalidMessage)
	}
	if in.SenderID == in.ReceiverID {
		return domain.Message{}, fmt.Errorf("%w: sender and receiver must differ", domain.ErrInvalidMessage)
	}

	idempotencyKey := ""
	if in.ClientMsgID != "" && s.redis != nil {
		idempotencyKey = sendIdempotencyKey(in.SenderID, in.ReceiverID, in.ClientMsgID)
		ok, err := s.redis.SetNX(ctx, idempotencyKey, "1", sendIdempotencyTTL).Result()
		if err == nil && !ok {
			return domain.Message{}, fmt.Errorf("%w: duplicate client_msg_id", domain.ErrInvalidMessage)
		}
	}

	created, err := s.messages.Create(ctx, in.SenderID, in.ReceiverID, in.Text, in.FileID)
	if err != nil {
		if idempotencyKey != "" {
			_, _ = s.redis.Del(ctx, idempotencyKey).Result()
		}
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}

	// The message is durable from here on. Index and publish are best effort.
	s.indexMessage(ctx, created)

	s.broadcaster.Publish(created)

	if s.events != nil {
		event := map[string]any{
			"event":       "message.created",
			"message_id":  created.ID,
			"sender_id":   created.SenderID,
			"receiver_id": created.ReceiverID,
			"created_at":  created.CreatedAt,
		}
		if err := s.events.Publish(ctx, "message.created", event); err != nil {
			commonlog.Warnf("event=chat_ingest action=publish_event status=failed message_id=%s error=%v", created.ID, err)
		}
	}

	return created, nil
}

func (s *ChatService) indexMessage(ctx context.Context, message domain.Message) {
	vec, err := s.embedder.Embed(ctx, message.Text)
	if err != nil {
		commonlog.Warnf("event=chat_ingest action=embed status=failed message_id=%s error=%v", message.ID, err)
		s.deferIndexing(message)
		return
	}
	if err := s.index.Upsert(ctx, indexPoint(message, vec)); err != nil {
		commonlog.Warnf("event=chat_ingest action=index status=failed message_id=%s error=%v", message.ID, err)
		s.deferIndexing(message)
		return
	}
	commonlog.Debugf("event=chat_ingest action=index status=ok message_id=%s", message.ID)
}

func (s *ChatService) deferIndexing(message domain.Message) {
	if s.outbox == nil {
		commonlog.Errorf("event=chat_ingest action=defer_index status=dropped message_id=%s", message.ID)
		return
	}
	s.outbox.Enqueue(message)
}

func (s *ChatService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.messages.ListForUser(ctx, userID, limit)
}

func (s *ChatService) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.messages.ListConversation(ctx, userID, peerID, limit)
}

func indexPoint(message domain.Message, vec []float32) vector.Point {
	return vector.Point{
		ID:     message.ID,
		Vector: vec,
		Payload: vector.Payload{
			Text:       message.Text,
			SenderID:   message.SenderID,
			ReceiverID: message.ReceiverID,
			Timestamp:  message.CreatedAt,
		},
	}
}

func sendIdempotencyKey(senderID, receiverID, clientMsgID string) string {
	return fmt.Sprintf("chat:message:idempotency:%s:%s:%s", senderID, receiverID, clientMsgID)
}
