package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"home-services-api/internal/envelope"
	"home-services-api/internal/models"
)

// ListNotifications handles GET /api/notifications
// Optional query param: unread=true.
func (h *Handler) ListNotifications(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	p := parsePage(c)

	query := h.db.Model(&models.Notification{}).
		Where("recipient_kind = ? AND recipient_id = ?", me.Kind, me.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}

	var notifications []models.Notification
	err := query.Session(&gorm.Session{}).Order("created_at desc, id desc").Limit(p.Limit).Offset(p.Offset()).Find(&notifications).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	c.JSON(http.StatusOK, envelope.Page[models.Notification]{
		Value:    notifications,
		Count:    total,
		NextLink: nextLink(c, p, total),
	})
}

// MarkNotificationRead handles PATCH /api/notifications/:id/read
// Marking is REST only; nothing is pushed.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	me, ok := caller(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var n models.Notification
	err := h.db.Where("id = ? AND recipient_kind = ? AND recipient_id = ?", id, me.Kind, me.ID).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notification"})
		}
		return
	}

	if !n.IsRead {
		now := time.Now()
		n.IsRead = true
		n.ReadAt = &now
		if err := h.db.Model(&n).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
			return
		}
	}
	c.JSON(http.StatusOK, n)
}
