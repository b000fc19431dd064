// Package handlers exposes the HTTP surface over the delivery and
// groups services.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/delivery"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler manages direct-message endpoints.
type MessageHandler struct {
	svc   *delivery.Service
	audit *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc *delivery.Service, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{svc: svc, audit: audit}
}

// Send handles POST /messages.
func (h *MessageHandler) Send(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		ReceiverID int    `json:"receiver_id" binding:"required"`
		Body       string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), userID, req.ReceiverID, req.Body)
	if err != nil {
		h.emitAudit(c, "ERROR", "message send failed")
		respondMessageError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Conversation handles GET /conversations/:user_id. Loading the thread
// marks the other side's pending messages delivered.
func (h *MessageHandler) Conversation(c *gin.Context) {
	userID := c.GetInt("userID")
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.svc.Conversation(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PendingCount handles GET /messages/pending. It reports how many
// messages across all senders still await delivery to the caller.
func (h *MessageHandler) PendingCount(c *gin.Context) {
	userID := c.GetInt("userID")

	count, err := h.svc.PendingCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count pending messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkDelivered handles POST /conversations/:user_id/delivered.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	userID := c.GetInt("userID")
	senderID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.svc.MarkDelivered(c.Request.Context(), userID, senderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark delivered"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(msgs), "messages": msgs})
}

// MarkRead handles POST /conversations/:user_id/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID := c.GetInt("userID")
	senderID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	msgs, err := h.svc.MarkRead(c.Request.Context(), userID, senderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(msgs), "messages": msgs})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func respondMessageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, delivery.ErrEmptyBody), errors.Is(err, delivery.ErrAnonymousSender):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, delivery.ErrReceiverNotFound), errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
	}
}
