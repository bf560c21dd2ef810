package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an exact cosine scan over an in-process point map. It honors
// the same contract as the Qdrant backend and backs local development and
// tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: map[string]Point{}}
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, point Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[point.ID] = point
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vec []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]ScoredPoint, 0, len(m.points))
	for _, point := range m.points {
		if point.Payload.SenderID != filter.ParticipantID && point.Payload.ReceiverID != filter.ParticipantID {
			continue
		}
		items = append(items, ScoredPoint{
			ID:      point.ID,
			Score:   cosineSimilarity(vec, point.Vector),
			Payload: point.Payload,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Len reports the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Get returns the stored point for id, if any.
func (m *MemoryIndex) Get(id string) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	point, ok := m.points[id]
	return point, ok
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
