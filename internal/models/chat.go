package models

import (
	"time"

	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
)

// Conversation pairs one user with one helper, usually around a booking.
type Conversation struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64     `json:"userId" gorm:"column:user_id;not null;uniqueIndex:idx_conversation_pair"`
	HelperID  int64     `json:"helperId" gorm:"column:helper_id;not null;uniqueIndex:idx_conversation_pair"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for Conversation Model
func (Conversation) TableName() string {
	return "conversations"
}

// Participant reports whether id takes part in the conversation.
func (c Conversation) Participant(id presence.Identity) bool {
	return (id.Kind == presence.KindUser && id.ID == c.UserID) ||
		(id.Kind == presence.KindHelper && id.ID == c.HelperID)
}

// Counterpart returns the other side of the conversation.
func (c Conversation) Counterpart(id presence.Identity) presence.Identity {
	if id.Kind == presence.KindUser {
		return presence.Identity{Kind: presence.KindHelper, ID: c.HelperID}
	}
	return presence.Identity{Kind: presence.KindUser, ID: c.UserID}
}

type ChatMessage struct {
	ID             int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID int64         `json:"conversationId" gorm:"column:conversation_id;not null;index"`
	SenderKind     presence.Kind `json:"senderKind" gorm:"column:sender_kind;not null"`
	SenderID       int64         `json:"senderId" gorm:"column:sender_id;not null"`
	RecipientKind  presence.Kind `json:"recipientKind" gorm:"column:recipient_kind;not null"`
	RecipientID    int64         `json:"recipientId" gorm:"column:recipient_id;not null"`
	Content        string        `json:"content" gorm:"not null"`
	IsRead         bool          `json:"isRead" gorm:"not null;default:false"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadAt         *time.Time    `json:"readAt,omitempty" gorm:"column:read_at"`
}

// TableName specifies the table name for ChatMessage Model
func (ChatMessage) TableName() string {
	return "chat_messages"
}

func (m ChatMessage) Payload() realtime.ChatMessage {
	return realtime.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         presence.Identity{Kind: m.SenderKind, ID: m.SenderID},
		Recipient:      presence.Identity{Kind: m.RecipientKind, ID: m.RecipientID},
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}
