package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"home-services-api/internal/auth"
	"home-services-api/internal/envelope"
	"home-services-api/internal/models"
	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

type StartConversationRequest struct {
	CounterpartID int64 `json:"counterpartId" binding:"required,gt=0"`
}

type SendMessageRequest struct {
	ConversationID int64  `json:"conversationId" binding:"required,gt=0"`
	Content        string `json:"content" binding:"required,max=4000"`
}

type MarkReadResponse struct {
	ConversationID int64   `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
	MarkedCount    int     `json:"markedCount"`
}

// StartConversation handles POST /api/chat/conversations
// A user opens a conversation with a helper or the other way round. Calling
// it again returns the existing conversation.
func (h *Handler) StartConversation(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wantRole := auth.RoleHelper
	conv := models.Conversation{UserID: me.ID, HelperID: req.CounterpartID}
	if me.Kind == presence.KindHelper {
		wantRole = auth.RoleUser
		conv = models.Conversation{UserID: req.CounterpartID, HelperID: me.ID}
	}

	var counterpart models.Account
	err := h.db.Where("id = ? AND role = ?", req.CounterpartID, wantRole).First(&counterpart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Counterpart not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch counterpart"})
		}
		return
	}

	status := http.StatusOK
	err = h.db.Where("user_id = ? AND helper_id = ?", conv.UserID, conv.HelperID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		status = http.StatusCreated
		err = h.db.Create(&conv).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start conversation"})
		return
	}
	c.JSON(status, conv)
}

// ListConversations handles GET /api/chat/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	column := "user_id"
	if me.Kind == presence.KindHelper {
		column = "helper_id"
	}

	var convs []models.Conversation
	if err := h.db.Where(column+" = ?", me.ID).Order("id desc").Find(&convs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}
	c.JSON(http.StatusOK, convs)
}

// loadConversation writes 404 unless the caller takes part in the conversation.
func (h *Handler) loadConversation(c *gin.Context, me presence.Identity, id int64) (models.Conversation, bool) {
	var conv models.Conversation
	if err := h.db.First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversation"})
		}
		return conv, false
	}
	if !conv.Participant(me) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return conv, false
	}
	return conv, true
}

// ListMessages handles GET /api/chat/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, ok := h.loadConversation(c, me, id); !ok {
		return
	}
	p := parsePage(c)

	query := h.db.Model(&models.ChatMessage{}).Where("conversation_id = ?", id)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count messages"})
		return
	}
	var msgs []models.ChatMessage
	err := query.Session(&gorm.Session{}).Order("created_at desc, id desc").Limit(p.Limit).Offset(p.Offset()).Find(&msgs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, envelope.Page[models.ChatMessage]{
		Value:    msgs,
		Count:    total,
		NextLink: nextLink(c, p, total),
	})
}

// SendMessage handles POST /api/chat/messages
// The stored message is pushed to every connection of the recipient.
func (h *Handler) SendMessage(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be blank"})
		return
	}

	conv, ok := h.loadConversation(c, me, req.ConversationID)
	if !ok {
		return
	}
	to := conv.Counterpart(me)

	msg := models.ChatMessage{
		ConversationID: conv.ID,
		SenderKind:     me.Kind,
		SenderID:       me.ID,
		RecipientKind:  to.Kind,
		RecipientID:    to.ID,
		Content:        content,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	h.dispatch.Chat(c.Request.Context(), msg.Payload())
	c.JSON(http.StatusCreated, msg)
}

// MarkConversationRead handles PATCH /api/chat/conversations/:id/read
// Every unread message addressed to the caller is marked and the sender is
// told which ones.
func (h *Handler) MarkConversationRead(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	conv, ok := h.loadConversation(c, me, id)
	if !ok {
		return
	}

	now := time.Now()
	var ids []int64
	err := h.db.Transaction(func(tx *gorm.DB) error {
		unread := tx.Model(&models.ChatMessage{}).
			Where("conversation_id = ? AND recipient_kind = ? AND recipient_id = ? AND is_read = ?", conv.ID, me.Kind, me.ID, false)
		if err := unread.Session(&gorm.Session{}).Order("id").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.ChatMessage{}).Where("id IN ?", ids).
			Updates(map[string]any{"is_read": true, "read_at": now}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark messages as read"})
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	if len(ids) > 0 {
		h.dispatch.MessagesRead(c.Request.Context(), conv.Counterpart(me), realtime.ReadReceipt{
			ConversationID: conv.ID,
			Reader:         me,
			MessageIDs:     ids,
			ReadAt:         now,
		})
	}

	c.JSON(http.StatusOK, MarkReadResponse{
		ConversationID: conv.ID,
		MessageIDs:     ids,
		MarkedCount:    len(ids),
	})
}
