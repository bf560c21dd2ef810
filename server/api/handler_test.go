package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semchat/server/domain"
	"semchat/server/service"
	"semchat/server/vector"
)

type memUserStore struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
}

func (f *memUserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *memUserStore) Create(ctx context.Context, name, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := domain.User{ID: uuid.NewString(), Name: name, Email: email, CreatedAt: time.Now().UTC()}
	f.byEmail[email] = u
	return u, nil
}

func (f *memUserStore) List(ctx context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.byEmail))
	for _, u := range f.byEmail {
		out = append(out, u)
	}
	return out, nil
}

type memMessageStore struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (f *memMessageStore) Create(ctx context.Context, senderID, receiverID, text string, fileID *string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		FileID:     fileID,
		CreatedAt:  time.Now().UTC(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *memMessageStore) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.messages[i]
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *memMessageStore) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.messages[i]
		if (m.SenderID == userID && m.ReceiverID == peerID) || (m.SenderID == peerID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fixedEmbedder struct {
	down bool
}

func (e fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.down {
		return nil, fmt.Errorf("%w: endpoint down", domain.ErrEmbeddingUnavailable)
	}
	// Deterministic two-dimensional direction per text length keeps ranking stable.
	if len(text)%2 == 0 {
		return []float32{1, 0}, nil
	}
	return []float32{0.9, 0.1}, nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish(message domain.Message) {}

func newTestRouter(embedder service.Embedder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	idx := vector.NewMemoryIndex()
	users := service.NewUserService(&memUserStore{byEmail: map[string]domain.User{}})
	chat := service.NewChatService(&memMessageStore{}, embedder, idx, noopBroadcaster{})
	search := service.NewSearchService(embedder, idx)

	r := gin.New()
	NewHandler(users, chat, search, nil, nil).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})
	w := doJSON(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLoginCreatedThenFound(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	w := doJSON(t, r, http.MethodPost, "/users", `{"name":"Alice","email":"alice@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	w = doJSON(t, r, http.MethodPost, "/users", `{"name":"Alice","email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var found domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	assert.Equal(t, created.ID, found.ID)
}

func TestLoginRejectsBadInput(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	w := doJSON(t, r, http.MethodPost, "/users", `{"name":"","email":"alice@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/users", `{"name":"Alice","email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAndListMessages(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	w := doJSON(t, r, http.MethodPost, "/messages", `{"senderId":"alice","receiverId":"bob","message":"see you at noon"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var sent domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice", sent.SenderID)
	assert.Equal(t, "bob", sent.ReceiverID)
	assert.Equal(t, "see you at noon", sent.Text)

	w = doJSON(t, r, http.MethodGet, "/messages?userId=bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
}

func TestSendMessageValidation(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	w := doJSON(t, r, http.MethodPost, "/messages", `{"senderId":"alice","receiverId":"alice","message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/messages", `{"senderId":"alice","receiverId":"bob","message":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMessagesRequiresUserID(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})
	w := doJSON(t, r, http.MethodGet, "/messages", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationEndpoint(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	for _, body := range []string{
		`{"senderId":"alice","receiverId":"bob","message":"a"}`,
		`{"senderId":"bob","receiverId":"alice","message":"b"}`,
		`{"senderId":"alice","receiverId":"carol","message":"c"}`,
	} {
		w := doJSON(t, r, http.MethodPost, "/messages", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/conversations?userId=alice&peerId=bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 2)

	w = doJSON(t, r, http.MethodGet, "/conversations?userId=alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSemanticSearchEndpoint(t *testing.T) {
	r := newTestRouter(fixedEmbedder{})

	w := doJSON(t, r, http.MethodPost, "/messages", `{"senderId":"alice","receiverId":"bob","message":"meet at noon"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/semantic-search?userId=alice&q=lunch", "")
	require.Equal(t, http.StatusOK, w.Code)
	var results []domain.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "meet at noon", results[0].Text)

	w = doJSON(t, r, http.MethodGet, "/semantic-search?userId=alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSemanticSearchUnavailable(t *testing.T) {
	r := newTestRouter(fixedEmbedder{down: true})
	w := doJSON(t, r, http.MethodGet, "/semantic-search?userId=alice&q=lunch", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
