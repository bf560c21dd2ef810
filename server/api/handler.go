package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"semchat/server/domain"
	"semchat/server/service"
)

type Handler struct {
	users  *service.UserService
	chat   *service.ChatService
	search *service.SearchService
	files  *service.FileService
	ws     *service.RealtimeService
}

func NewHandler(users *service.UserService, chat *service.ChatService, search *service.SearchService, files *service.FileService, ws *service.RealtimeService) *Handler {
	return &Handler{users: users, chat: chat, search: search, files: files, ws: ws}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	if h.ws != nil {
		r.GET("/ws", h.ws.HandleWS)
	}

	r.POST("/users", h.login)
	r.GET("/users", h.listUsers)
	r.POST("/messages", h.sendMessage)
	r.GET("/messages", h.listMessages)
	r.GET("/conversations", h.listConversation)
	r.GET("/semantic-search", h.semanticSearch)

	if h.files != nil {
		r.POST("/files/presign-upload", h.presignUpload)
		r.POST("/files", h.registerFile)
		r.GET("/files/:id/url", h.downloadURL)
	}
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	user, created, err := h.users.Login(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, user)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		SenderID    string  `json:"senderId"`
		ReceiverID  string  `json:"receiverId"`
		Message     string  `json:"message"`
		FileID      *string `json:"fileId"`
		ClientMsgID string  `json:"clientMsgId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	message, err := h.chat.SendMessage(c.Request.Context(), service.SendMessageInput{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Text:        req.Message,
		FileID:      req.FileID,
		ClientMsgID: req.ClientMsgID,
	})
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *Handler) listMessages(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("userId is required"))
		return
	}
	messages, err := h.chat.ListForUser(c.Request.Context(), userID, queryInt(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) listConversation(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	peerID := strings.TrimSpace(c.Query("peerId"))
	if userID == "" || peerID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse("userId and peerId are required"))
		return
	}
	messages, err := h.chat.ListConversation(c.Request.Context(), userID, peerID, queryInt(c, "limit"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) semanticSearch(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	query := strings.TrimSpace(c.Query("q"))
	results, err := h.search.Search(c.Request.Context(), userID, query, queryInt(c, "limit"))
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) presignUpload(c *gin.Context) {
	var req struct {
		ObjectKey string `json:"objectKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	u, err := h.files.PresignUpload(c.Request.Context(), req.ObjectKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewURLResponse(u))
}

func (h *Handler) registerFile(c *gin.Context) {
	var req struct {
		OwnerID     string `json:"ownerId" binding:"required"`
		ObjectKey   string `json:"objectKey" binding:"required"`
		ContentType string `json:"contentType"`
		SizeBytes   int64  `json:"sizeBytes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	item, err := h.files.Register(c.Request.Context(), domain.FileObject{
		OwnerID:     req.OwnerID,
		ObjectKey:   req.ObjectKey,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) downloadURL(c *gin.Context) {
	u, err := h.files.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, NewURLResponse(u))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPersistenceFailed),
		errors.Is(err, domain.ErrSearchUnavailable),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c *gin.Context, key string) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
