package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"plateful/internal/app/dto"
	chatsvc "plateful/internal/app/services/chat"
	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/obs"
)

// ChatHandler exposes conversation threads over HTTP. The live websocket
// endpoint lives in ws.go.
type ChatHandler struct {
	Service *chatsvc.Service
	Logger  *slog.Logger
}

// CreateListingConversation opens (or returns) the requester's thread with
// the listing owner.
func (h ChatHandler) CreateListingConversation(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversation, err := h.Service.GetOrCreateConversation(c.Request.Context(),
		domainlisting.ListingID(c.Param("id")), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapConversation(conversation, domainuser.ID(principal.ID)))
}

func (h ChatHandler) ListMyConversations(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversations, err := h.Service.ListConversations(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	list := dto.ConversationList{Items: make([]dto.Conversation, 0, len(conversations))}
	for _, conversation := range conversations {
		list.Items = append(list.Items, dto.MapConversation(conversation, domainuser.ID(principal.ID)))
	}
	c.JSON(http.StatusOK, list)
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	messages, err := h.Service.ListMessages(c.Request.Context(),
		domainchat.ConversationID(c.Param("id")), domainuser.ID(principal.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapChatMessages(messages))
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	message, err := h.Service.SendMessage(c.Request.Context(),
		domainchat.ConversationID(c.Param("id")), domainuser.ID(principal.ID), req.Text)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapChatMessage(*message))
}

func (h ChatHandler) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, domainlisting.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	case errors.Is(err, domainchat.ErrEmptyMessage),
		errors.Is(err, domainchat.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat operation failed",
				"error", err,
				"request_id", obs.RequestIDFromContext(c.Request.Context()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
