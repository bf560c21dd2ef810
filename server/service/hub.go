package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	commonlog "semchat/server/common/log"
	"semchat/server/domain"
)

const chatEventsChannel = "chat:events"

// Client is one live websocket subscriber. Send is drained by the
// connection's write pump; a full buffer means the payload is dropped for
// that connection (best effort, at-most-once).
type Client struct {
	UserID string
	Send   chan []byte
}

func NewHubClient(userID string) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 32)}
}

// Hub is the subscription registry keyed by user id. Publish targets only
// the participants of a message, never the whole connection set. With Redis
// attached, fanout goes through pub/sub so every instance delivers to its
// local connections; without it, delivery is local-only.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

type hubEvent struct {
	UserIDs []string        `json:"user_ids"`
	Payload json.RawMessage `json:"payload"`
}

type receiveEnvelope struct {
	Type string         `json:"type"`
	Data domain.Message `json:"data"`
}

func NewHub() *Hub {
	return &Hub{clients: map[string]map[*Client]struct{}{}}
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, chatEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = map[*Client]struct{}{}
	}
	h.clients[client.UserID][client] = struct{}{}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[client.UserID]; ok {
		if _, registered := conns[client]; registered {
			delete(conns, client)
			close(client.Send)
		}
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
}

// Publish delivers the receiveMessage event to the live connections of the
// message's sender and receiver.
func (h *Hub) Publish(message domain.Message) {
	payload, err := json.Marshal(receiveEnvelope{Type: "receiveMessage", Data: message})
	if err != nil {
		commonlog.Errorf("event=chat_hub action=publish status=failed message_id=%s error=%v", message.ID, err)
		return
	}
	targets := []string{message.SenderID, message.ReceiverID}
	if h.publishRedis(targets, payload) {
		return
	}
	fanout := 0
	for _, userID := range targets {
		fanout += h.deliverLocal(userID, payload)
	}
	commonlog.Debugf("event=chat_hub action=local_dispatch message_id=%s fanout_count=%d", message.ID, fanout)
}

func (h *Hub) publishRedis(userIDs []string, payload []byte) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	b, err := json.Marshal(hubEvent{UserIDs: userIDs, Payload: payload})
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), chatEventsChannel, b).Err(); err != nil {
		commonlog.Warnf("event=chat_hub action=publish status=failed error=%v", err)
		return false
	}
	return true
}

func (h *Hub) deliverLocal(userID string, payload []byte) int {
	h.mu.RLock()
	conns := h.clients[userID]
	count := 0
	for client := range conns {
		select {
		case client.Send <- payload:
			count++
		default:
			commonlog.Warnf("event=chat_hub action=deliver status=dropped user_id=%s", userID)
		}
	}
	h.mu.RUnlock()
	return count
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		total := 0
		for _, userID := range event.UserIDs {
			total += h.deliverLocal(userID, event.Payload)
		}
		commonlog.Debugf("event=chat_hub action=consume fanout_count=%d", total)
	}
}
