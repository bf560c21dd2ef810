package service

import (
	"context"
	"fmt"
	"strings"

	"semchat/server/domain"
	"semchat/server/vector"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// SearchService answers semantic queries over a user's own conversations:
// embed the query, run a participant-filtered nearest-neighbor search, shape
// results in the index's similarity order.
type SearchService struct {
	embedder Embedder
	index    vector.Index
}

func NewSearchService(embedder Embedder, index vector.Index) *SearchService {
	return &SearchService{embedder: embedder, index: index}
}

func (s *SearchService) Search(ctx context.Context, userID, query string, limit int) ([]domain.SearchResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: userId and query are required", domain.ErrInvalidQuery)
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	points, err := s.index.Search(ctx, vec, vector.Filter{ParticipantID: userID}, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	// Keep the index's descending-similarity order untouched.
	results := make([]domain.SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, domain.SearchResult{
			MessageID: point.ID,
			Text:      point.Payload.Text,
			Score:     point.Score,
			Timestamp: point.Payload.Timestamp,
		})
	}
	return results, nil
}
