package vector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchat/server/domain"
)

type recordedRequest struct {
	method string
	path   string
	apiKey string
	body   []byte
}

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{r.Method, r.URL.Path, r.Header.Get("api-key"), raw})
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewQdrantIndex(srv.URL, "qdrant-key", "messages", 384)
	require.NoError(t, idx.EnsureCollection(context.Background()))

	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodGet, reqs[0].method)
	assert.Equal(t, "/collections/messages", reqs[0].path)
	assert.Equal(t, "qdrant-key", reqs[0].apiKey)

	assert.Equal(t, http.MethodPut, reqs[1].method)
	var create map[string]any
	require.NoError(t, json.Unmarshal(reqs[1].body, &create))
	vectors, ok := create["vectors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestQdrantEnsureCollectionSkipsExisting(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewQdrantIndex(srv.URL, "", "messages", 384)
	require.NoError(t, idx.EnsureCollection(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestQdrantUpsertSendsPointKeyedByMessageID(t *testing.T) {
	var req recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req = recordedRequest{r.Method, r.URL.Path, r.Header.Get("api-key"), raw}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx := NewQdrantIndex(srv.URL, "qdrant-key", "messages", 2)
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	err := idx.Upsert(context.Background(), Point{
		ID:     "4a1f2d3c-0000-0000-0000-000000000001",
		Vector: []float32{0.1, 0.9},
		Payload: Payload{
			Text:       "see you at noon",
			SenderID:   "alice",
			ReceiverID: "bob",
			Timestamp:  ts,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/collections/messages/points", req.path)
	assert.Equal(t, "qdrant-key", req.apiKey)

	var body struct {
		Points []struct {
			ID      string            `json:"id"`
			Vector  []float32         `json:"vector"`
			Payload map[string]string `json:"payload"`
		} `json:"points"`
	}
	require.NoError(t, json.Unmarshal(req.body, &body))
	require.Len(t, body.Points, 1)
	assert.Equal(t, "4a1f2d3c-0000-0000-0000-000000000001", body.Points[0].ID)
	assert.Equal(t, "see you at noon", body.Points[0].Payload["text"])
	assert.Equal(t, "alice", body.Points[0].Payload["sender_id"])
	assert.Equal(t, "bob", body.Points[0].Payload["receiver_id"])
	assert.Equal(t, ts.Format(time.RFC3339Nano), body.Points[0].Payload["timestamp"])
}

func TestQdrantSearchFiltersByParticipant(t *testing.T) {
	var req recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		req = recordedRequest{r.Method, r.URL.Path, r.Header.Get("api-key"), raw}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"m2","score":0.93,"payload":{"text":"hi there","sender_id":"bob","receiver_id":"alice","timestamp":"2026-03-14T09:26:53Z"}},
			{"id":"m1","score":0.81,"payload":{"text":"greetings","sender_id":"alice","receiver_id":"bob","timestamp":"2026-03-14T09:25:00Z"}}
		]}`))
	}))
	defer srv.Close()

	idx := NewQdrantIndex(srv.URL, "", "messages", 2)
	hits, err := idx.Search(context.Background(), []float32{0.1, 0.9}, Filter{ParticipantID: "alice"}, 5)
	require.NoError(t, err)

	assert.Equal(t, "/collections/messages/points/search", req.path)
	var body struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		Filter      struct {
			Should []struct {
				Key   string `json:"key"`
				Match struct {
					Value string `json:"value"`
				} `json:"match"`
			} `json:"should"`
		} `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(req.body, &body))
	assert.Equal(t, 5, body.Limit)
	assert.True(t, body.WithPayload)
	require.Len(t, body.Filter.Should, 2)
	assert.Equal(t, "sender_id", body.Filter.Should[0].Key)
	assert.Equal(t, "alice", body.Filter.Should[0].Match.Value)
	assert.Equal(t, "receiver_id", body.Filter.Should[1].Key)
	assert.Equal(t, "alice", body.Filter.Should[1].Match.Value)

	require.Len(t, hits, 2)
	assert.Equal(t, "m2", hits[0].ID)
	assert.Equal(t, "hi there", hits[0].Payload.Text)
	assert.InDelta(t, 0.93, float64(hits[0].Score), 0.0001)
	assert.Equal(t, "m1", hits[1].ID)
}

func TestQdrantErrorsWrapIndexUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	idx := NewQdrantIndex(srv.URL, "", "messages", 2)

	err := idx.Upsert(context.Background(), Point{ID: "m1", Vector: []float32{1, 0}})
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))

	_, err = idx.Search(context.Background(), []float32{1, 0}, Filter{ParticipantID: "alice"}, 5)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))

	down := NewQdrantIndex("http://127.0.0.1:1", "", "messages", 2)
	err = down.Upsert(context.Background(), Point{ID: "m1", Vector: []float32{1, 0}})
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
}
