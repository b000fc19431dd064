package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/groups"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// GroupHandler manages group lifecycle, membership and message endpoints.
type GroupHandler struct {
	svc   *groups.Service
	audit *telemetry.AuditEmitter
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(svc *groups.Service, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{svc: svc, audit: audit}
}

type groupRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	IsPrivate   bool    `json:"is_private"`
	MaxMembers  int     `json:"max_members"`
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.svc.CreateGroup(c.Request.Context(), userID, groups.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "group create failed")
		respondGroupError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "group created")
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// ListGroups handles GET /groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt("userID")
	list, err := h.svc.ListGroups(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": list})
}

// GetGroup handles GET /groups/:group_id.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	group, err := h.svc.GetGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// UpdateGroup handles PUT /groups/:group_id.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.svc.UpdateGroup(c.Request.Context(), userID, groupID, groups.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// DeleteGroup handles DELETE /groups/:group_id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteGroup(c.Request.Context(), userID, groupID); err != nil {
		respondGroupError(c, err)
		return
	}
	h.emitAudit(c, "INFO", "group deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Join handles POST /groups/:group_id/join.
func (h *GroupHandler) Join(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	member, err := h.svc.Join(c.Request.Context(), userID, groupID)
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

// Leave handles POST /groups/:group_id/leave.
func (h *GroupHandler) Leave(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	if err := h.svc.Leave(c.Request.Context(), userID, groupID); err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// ListMembers handles GET /groups/:group_id/members.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(c.Request.Context(), userID, groupID)
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddMembers handles POST /groups/:group_id/members.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		UserIDs []int `json:"user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.svc.AddMembers(c.Request.Context(), userID, groupID, req.UserIDs)
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.svc.RemoveMember(c.Request.Context(), userID, groupID, targetID); err != nil {
		respondGroupError(c, err)
		return
	}
	h.emitAudit(c, "INFO", "member removed")
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// UpdateRole handles PUT /groups/:group_id/members/:user_id/role.
func (h *GroupHandler) UpdateRole(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.UpdateRole(c.Request.Context(), userID, groupID, targetID, models.Role(req.Role)); err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// ListMessages handles GET /groups/:group_id/messages.
func (h *GroupHandler) ListMessages(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.svc.ListMessages(c.Request.Context(), userID, groupID, limit)
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage handles POST /groups/:group_id/messages.
func (h *GroupHandler) PostMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	groupID, ok := pathInt(c, "group_id")
	if !ok {
		return
	}

	var req struct {
		Body        string          `json:"body" binding:"required"`
		Type        string          `json:"type"`
		Attachments json.RawMessage `json:"attachments"`
		ReplyTo     *int            `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.svc.PostMessage(c.Request.Context(), userID, groupID, groups.PostMessageInput{
		Body:        req.Body,
		Type:        req.Type,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": view})
}

// DeleteMessage handles DELETE /groups/:group_id/messages/:message_id.
func (h *GroupHandler) DeleteMessage(c *gin.Context) {
	userID := c.GetInt("userID")
	if _, ok := pathInt(c, "group_id"); !ok {
		return
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if err := h.svc.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		respondGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func pathInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func respondGroupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, groups.ErrNotAMember),
		errors.Is(err, groups.ErrInsufficientRole),
		errors.Is(err, groups.ErrCreatorCannotLeave),
		errors.Is(err, groups.ErrCreatorImmutable):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrGroupFull),
		errors.Is(err, repositories.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrGroupNotFound),
		errors.Is(err, repositories.ErrMemberNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, groups.ErrInvalidName),
		errors.Is(err, groups.ErrInvalidMaxMembers),
		errors.Is(err, groups.ErrInvalidRole),
		errors.Is(err, groups.ErrEmptyBody),
		errors.Is(err, groups.ErrReplyNotFound),
		errors.Is(err, groups.ErrReplyWrongGroup):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
