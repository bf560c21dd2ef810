package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchat/server/domain"
	"semchat/server/vector"
)

func outboxMessage(id, text string) domain.Message {
	return domain.Message{
		ID:         id,
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestOutboxRetriesUntilSuccess(t *testing.T) {
	embedder := &stubEmbedder{failures: 1}
	idx := vector.NewMemoryIndex()
	outbox := NewIndexOutbox(embedder, idx)
	ctx := context.Background()

	outbox.Enqueue(outboxMessage("m1", "hi"))
	require.Equal(t, 1, outbox.PendingCount())

	indexed := outbox.Flush(ctx)
	assert.Equal(t, 0, indexed)
	assert.Equal(t, 1, outbox.PendingCount(), "failed entry stays queued")

	indexed = outbox.Flush(ctx)
	assert.Equal(t, 1, indexed)
	assert.Equal(t, 0, outbox.PendingCount())
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Get("m1")
	assert.True(t, ok)
}

func TestOutboxDropsExhaustedEntries(t *testing.T) {
	embedder := &stubEmbedder{failures: 1000}
	idx := vector.NewMemoryIndex()
	outbox := NewIndexOutbox(embedder, idx)
	ctx := context.Background()

	outbox.Enqueue(outboxMessage("m1", "hi"))
	for i := 0; i < defaultOutboxMaxAttempts; i++ {
		outbox.Flush(ctx)
	}

	assert.Equal(t, 0, outbox.PendingCount(), "exhausted entries are dropped")
	assert.Equal(t, 0, idx.Len())
}

func TestOutboxEvictsOldestWhenFull(t *testing.T) {
	embedder := &stubEmbedder{failures: 1000}
	idx := vector.NewMemoryIndex()
	outbox := NewIndexOutbox(embedder, idx)

	for i := 0; i < defaultOutboxCapacity+1; i++ {
		outbox.Enqueue(outboxMessage(fmt.Sprintf("m%d", i), "hi"))
	}
	assert.Equal(t, defaultOutboxCapacity, outbox.PendingCount())
}

func TestOutboxFlushKeepsWorkingEntriesMoving(t *testing.T) {
	embedder := &stubEmbedder{failures: 2}
	idx := vector.NewMemoryIndex()
	outbox := NewIndexOutbox(embedder, idx)
	ctx := context.Background()

	outbox.Enqueue(outboxMessage("m1", "first"))
	outbox.Enqueue(outboxMessage("m2", "second"))

	// First flush burns both failures, second flush indexes both.
	assert.Equal(t, 0, outbox.Flush(ctx))
	assert.Equal(t, 2, outbox.Flush(ctx))
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 0, outbox.PendingCount())
}
