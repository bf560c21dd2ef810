// Command reindex re-embeds and re-upserts every stored message into the
// vector index. Run it to backfill after index downtime or after changing the
// embedding model. Upserts are keyed by message id, so reruns are safe.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"semchat/server/app"
	"semchat/server/common/infra/db"
	"semchat/server/embedding"
	"semchat/server/repository"
	"semchat/server/vector"
)

func main() {
	batchSize := flag.Int("batch", 100, "messages per batch")
	flag.Parse()

	_ = godotenv.Load()
	cfg := app.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	embedder := embedding.NewClient(cfg.EmbeddingEndpoint, cfg.EmbeddingToken, cfg.EmbeddingDim,
		embedding.WithRetry(cfg.EmbeddingAttempts, cfg.EmbeddingRetryDelay))

	var index vector.Index
	switch cfg.VectorBackend {
	case app.VectorBackendMemory:
		index = vector.NewMemoryIndex()
	default:
		index = vector.NewQdrantIndex(cfg.QdrantEndpoint, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingDim)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		log.Fatalf("ensure vector collection: %v", err)
	}

	messages := repository.NewMessageRepository(pool)

	var (
		cursorCreatedAt *time.Time
		cursorID        *string
		indexed         int
		failed          int
	)
	for {
		batch, err := messages.ListBatch(ctx, cursorCreatedAt, cursorID, *batchSize)
		if err != nil {
			log.Fatalf("list messages: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, m := range batch {
			vec, err := embedder.Embed(ctx, m.Text)
			if err != nil {
				log.Printf("embed message %s: %v", m.ID, err)
				failed++
				continue
			}
			point := vector.Point{
				ID:     m.ID,
				Vector: vec,
				Payload: vector.Payload{
					Text:       m.Text,
					SenderID:   m.SenderID,
					ReceiverID: m.ReceiverID,
					Timestamp:  m.CreatedAt,
				},
			}
			if err := index.Upsert(ctx, point); err != nil {
				log.Printf("index message %s: %v", m.ID, err)
				failed++
				continue
			}
			indexed++
		}
		last := batch[len(batch)-1]
		createdAt := last.CreatedAt
		id := last.ID
		cursorCreatedAt = &createdAt
		cursorID = &id
	}

	log.Printf("reindex done: indexed=%d failed=%d", indexed, failed)
	if failed > 0 {
		log.Fatal("some messages failed; rerun to retry")
	}
}
