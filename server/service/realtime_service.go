package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "semchat/server/common/log"
	"semchat/server/domain"
)

// RealtimeService terminates the websocket side of the real-time channel:
// inbound sendMessage envelopes run through the ingestion pipeline, outbound
// receiveMessage events arrive through the hub.
type RealtimeService struct {
	hub  *Hub
	chat *ChatService
}

func NewRealtimeService(hub *Hub, chat *ChatService) *RealtimeService {
	return &RealtimeService{hub: hub, chat: chat}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsInbound struct {
	Type    string `json:"type"`
	Payload struct {
		ReceiverID  string  `json:"receiverId"`
		Message     string  `json:"message"`
		FileID      *string `json:"fileId"`
		ClientMsgID string  `json:"clientMsgId"`
	} `json:"payload"`
}

func (s *RealtimeService) HandleWS(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := NewHubClient(userID)
	s.hub.Register(client)
	go writePump(conn, client)
	defer func() {
		s.hub.Unregister(client)
		_ = conn.Close()
	}()

	commonlog.Infof("event=realtime action=connect user_id=%s", userID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			commonlog.Infof("event=realtime action=disconnect user_id=%s", userID)
			return
		}
		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			sendWSError(client, "invalid envelope")
			continue
		}
		if in.Type != "sendMessage" {
			continue
		}
		_, err = s.chat.SendMessage(c.Request.Context(), SendMessageInput{
			SenderID:    userID,
			ReceiverID:  in.Payload.ReceiverID,
			Text:        in.Payload.Message,
			FileID:      in.Payload.FileID,
			ClientMsgID: in.Payload.ClientMsgID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidMessage) {
				sendWSError(client, err.Error())
			} else {
				sendWSError(client, "failed to send message")
			}
		}
	}
}

func writePump(conn *websocket.Conn, client *Client) {
	for payload := range client.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// sendWSError rides the same write pump as regular deliveries; the conn has
// a single writer.
func sendWSError(client *Client, message string) {
	b, _ := json.Marshal(gin.H{"type": "error", "error": message})
	select {
	case client.Send <- b:
	default:
	}
}
