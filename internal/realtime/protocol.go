package realtime

import (
	"encoding/json"
	"strconv"
	"time"

	"home-services-api/internal/presence"
)

// Client -> server invocation targets.
const (
	TargetJoinGroup                     = "JoinGroup"
	TargetLeaveGroup                    = "LeaveGroup"
	TargetJoinConversation              = "JoinConversation"
	TargetLeaveConversation             = "LeaveConversation"
	TargetSendNotificationToUser        = "SendNotificationToUser"
	TargetSendChatMessage               = "SendChatMessage"
	TargetSendChatMessageToConversation = "SendChatMessageToConversation"
	TargetNotifyMessageRead             = "NotifyMessageRead"
)

// Server -> client event names.
const (
	EventConnected            = "Connected"
	EventError                = "Error"
	EventJoinedGroup          = "JoinedGroup"
	EventLeftGroup            = "LeftGroup"
	EventJoinedConversation   = "JoinedConversation"
	EventLeftConversation     = "LeftConversation"
	EventReceiveNotification  = "ReceiveNotification"
	EventReceiveChatMessage   = "ReceiveChatMessage"
	EventMessagesMarkedAsRead = "MessagesMarkedAsRead"
	EventUserStatusChanged    = "UserStatusChanged"
)

// Broad groups every authenticated connection joins.
const (
	GroupUsers   = "Users"
	GroupHelpers = "Helpers"
)

// BroadGroup returns the category group for kind.
func BroadGroup(kind presence.Kind) string {
	if kind == presence.KindHelper {
		return GroupHelpers
	}
	return GroupUsers
}

func ConversationGroup(id int64) string          { return "Conversation_" + strconv.FormatInt(id, 10) }
func ServiceTypeGroup(serviceType string) string { return "ServiceType_" + serviceType }
func LocationGroup(place string) string          { return "Location_" + place }

// Invocation is a client request frame:
//
//	{"target":"JoinGroup","arguments":["Conversation_7"]}
type Invocation struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Event is a server push frame:
//
//	{"target":"ReceiveNotification","arguments":[{...}]}
type Event struct {
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

func NewEvent(target string, args ...any) Event {
	if args == nil {
		args = []any{}
	}
	return Event{Target: target, Arguments: args}
}

func ErrorEvent(msg string) Event { return NewEvent(EventError, msg) }

// Notification is the persisted notification as pushed to clients. Delivery
// code passes it by value and never modifies it.
type Notification struct {
	ID                int64      `json:"id"`
	RecipientUserID   *int64     `json:"recipientUserId,omitempty"`
	RecipientHelperID *int64     `json:"recipientHelperId,omitempty"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Type              string     `json:"type,omitempty"`
	ReferenceID       *int64     `json:"referenceId,omitempty"`
	IsRead            bool       `json:"isRead"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	SentAt            *time.Time `json:"sentAt,omitempty"`

	// Transient marks group alerts that were never stored. They carry no id
	// and cannot be marked read.
	Transient bool `json:"transient,omitempty"`
}

// Alert builds a transient notification for a group or broad category.
func Alert(title, message, kind string, ref *int64, at time.Time) Notification {
	return Notification{
		Title:       title,
		Message:     message,
		Type:        kind,
		ReferenceID: ref,
		CreatedAt:   at,
		Transient:   true,
	}
}

// ChatMessage is a persisted chat message as pushed to clients.
type ChatMessage struct {
	ID             int64             `json:"id"`
	ConversationID int64             `json:"conversationId"`
	Sender         presence.Identity `json:"sender"`
	Recipient      presence.Identity `json:"recipient"`
	Content        string            `json:"content"`
	IsRead         bool              `json:"isRead"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ReadReceipt tells the other party which messages were read.
type ReadReceipt struct {
	ConversationID int64             `json:"conversationId"`
	Reader         presence.Identity `json:"reader"`
	MessageIDs     []int64           `json:"messageIds,omitempty"`
	ReadAt         time.Time         `json:"readAt"`
}

// StatusChange is the UserStatusChanged payload.
type StatusChange struct {
	Identity presence.Identity `json:"identity"`
	IsOnline bool              `json:"isOnline"`
}
