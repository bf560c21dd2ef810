package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"semchat/server/domain"
)

// QdrantIndex talks to a Qdrant collection over its HTTP API. One point per
// message, cosine distance, dimension fixed at construction.
type QdrantIndex struct {
	endpoint   string
	apiKey     string
	collection string
	dim        int
	client     *http.Client
}

func NewQdrantIndex(endpoint, apiKey, collection string, dim int) *QdrantIndex {
	normalizedCollection := strings.TrimSpace(collection)
	if normalizedCollection == "" {
		normalizedCollection = "messages"
	}
	return &QdrantIndex{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		collection: normalizedCollection,
		dim:        dim,
		client:     &http.Client{Timeout: 4 * time.Second},
	}
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	_, statusCode, err := q.request(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", q.collection), nil)
	if err != nil {
		return err
	}
	if statusCode == http.StatusOK {
		return nil
	}
	if statusCode != http.StatusNotFound {
		return fmt.Errorf("%w: status %d while checking collection", domain.ErrIndexUnavailable, statusCode)
	}

	createPayload := map[string]any{
		"vectors": map[string]any{
			"size":     q.dim,
			"distance": "Cosine",
		},
	}
	_, createStatus, err := q.request(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), createPayload)
	if err != nil {
		return err
	}
	if createStatus != http.StatusOK && createStatus != http.StatusConflict {
		return fmt.Errorf("%w: status %d while creating collection", domain.ErrIndexUnavailable, createStatus)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, point Point) error {
	payload := map[string]any{
		"points": []map[string]any{{
			"id":     point.ID,
			"vector": point.Vector,
			"payload": map[string]any{
				"text":        point.Payload.Text,
				"sender_id":   point.Payload.SenderID,
				"receiver_id": point.Payload.ReceiverID,
				"timestamp":   point.Payload.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		}},
	}
	_, statusCode, err := q.request(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", q.collection), payload)
	if err != nil {
		return err
	}
	if statusCode >= 300 {
		return fmt.Errorf("%w: status %d", domain.ErrIndexUnavailable, statusCode)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vec []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	payload := map[string]any{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"should": []map[string]any{
				{"key": "sender_id", "match": map[string]any{"value": filter.ParticipantID}},
				{"key": "receiver_id", "match": map[string]any{"value": filter.ParticipantID}},
			},
		},
	}

	body, statusCode, err := q.request(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), payload)
	if err != nil {
		return nil, err
	}
	if statusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrIndexUnavailable, statusCode)
	}

	var out qdrantSearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", domain.ErrIndexUnavailable, err)
	}

	items := make([]ScoredPoint, 0, len(out.Result))
	for _, row := range out.Result {
		item := ScoredPoint{
			ID:    fmt.Sprintf("%v", row.ID),
			Score: row.Score,
			Payload: Payload{
				Text:       row.Payload.Text,
				SenderID:   row.Payload.SenderID,
				ReceiverID: row.Payload.ReceiverID,
			},
		}
		if ts, err := time.Parse(time.RFC3339Nano, row.Payload.Timestamp); err == nil {
			item.Payload.Timestamp = ts
		}
		items = append(items, item)
	}
	return items, nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float32 `json:"score"`
		Payload struct {
			Text       string `json:"text"`
			SenderID   string `json:"sender_id"`
			ReceiverID string `json:"receiver_id"`
			Timestamp  string `json:"timestamp"`
		} `json:"payload"`
	} `json:"result"`
}

func (q *QdrantIndex) request(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var bodyBytes []byte
	var err error
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: marshal request: %v", domain.ErrIndexUnavailable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", domain.ErrIndexUnavailable, err)
	}
	return responseBody, resp.StatusCode, nil
}
