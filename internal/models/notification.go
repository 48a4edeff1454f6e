package models

import (
	"time"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

// Notification is the persisted copy of a pushed notification.
type Notification struct {
	ID            int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	RecipientKind presence.Kind `json:"recipientKind" gorm:"column:recipient_kind;not null;index:idx_notification_recipient"`
	RecipientID   int64         `json:"recipientId" gorm:"column:recipient_id;not null;index:idx_notification_recipient"`
	Title         string        `json:"title" gorm:"not null"`
	Message       string        `json:"message"`
	Type          string        `json:"type"`
	ReferenceID   *int64        `json:"referenceId,omitempty" gorm:"column:reference_id"`
	IsRead        bool          `json:"isRead" gorm:"not null;default:false"`
	ReadAt        *time.Time    `json:"readAt,omitempty" gorm:"column:read_at"`
	SentAt        *time.Time    `json:"sentAt,omitempty" gorm:"column:sent_at"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// TableName specifies the table name for Notification Model
func (Notification) TableName() string {
	return "notifications"
}

func NewNotification(to presence.Identity, title, message, kind string, referenceID *int64) Notification {
	return Notification{
		RecipientKind: to.Kind,
		RecipientID:   to.ID,
		Title:         title,
		Message:       message,
		Type:          kind,
		ReferenceID:   referenceID,
	}
}

func (n Notification) Recipient() presence.Identity {
	return presence.Identity{Kind: n.RecipientKind, ID: n.RecipientID}
}

// Payload is the ReceiveNotification argument for this row.
func (n Notification) Payload() realtime.Notification {
	p := realtime.Notification{
		ID:          n.ID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        n.Type,
		ReferenceID: n.ReferenceID,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
		SentAt:      n.SentAt,
	}
	id := n.RecipientID
	if n.RecipientKind == presence.KindHelper {
		p.RecipientHelperID = &id
	} else {
		p.RecipientUserID = &id
	}
	return p
}
