package domain

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is immutable once created. A conversation is the unordered pair
// {SenderID, ReceiverID}.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text"`
	FileID     *string   `json:"fileId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SearchResult is one ranked hit from the semantic index. Score is the raw
// similarity score of the underlying metric, higher is closer.
type SearchResult struct {
	MessageID string    `json:"messageId"`
	Text      string    `json:"message"`
	Score     float32   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type FileObject struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	ObjectKey    string    `json:"objectKey"`
	ThumbnailKey string    `json:"thumbnailKey,omitempty"`
	ContentType  string    `json:"contentType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}
