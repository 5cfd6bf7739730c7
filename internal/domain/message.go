package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// ContactRequest is the first message to an item's owner.
type ContactRequest struct {
	ItemID  string `json:"itemId"`
	Message string `json:"message"`
}

// Validate checks required fields and the message length
func (r ContactRequest) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return errors.Validation("missing required field: itemId")
	}
	return validateMessage(r.Message)
}

// ReplyRequest continues a conversation about an item.
type ReplyRequest struct {
	ThreadID        string `json:"threadId,omitempty"`
	ItemID          string `json:"itemId"`
	RecipientUserID string `json:"recipientUserId"`
	Message         string `json:"message"`
}

// Validate checks required fields and the message length
func (r ReplyRequest) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return errors.Validation("missing required field: itemId")
	}
	if strings.TrimSpace(r.RecipientUserID) == "" {
		return errors.Validation("missing required field: recipientUserId")
	}
	return validateMessage(r.Message)
}

func validateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.Validation("missing required field: message")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return errors.Validationf("message must be at most %d characters", MaxMessageLength)
	}
	return nil
}

// Message is one entry in a conversation thread.
type Message struct {
	ID              string     `json:"id" yaml:"id"`
	ItemID          string     `json:"itemId" yaml:"itemId"`
	ItemTitle       string     `json:"itemTitle,omitempty" yaml:"itemTitle,omitempty"`
	ItemStatus      ItemStatus `json:"itemStatus,omitempty" yaml:"itemStatus,omitempty"`
	SenderUserID    string     `json:"senderUserId" yaml:"senderUserId"`
	SenderName      string     `json:"senderName,omitempty" yaml:"senderName,omitempty"`
	SenderEmail     string     `json:"senderEmail,omitempty" yaml:"senderEmail,omitempty"`
	RecipientUserID string     `json:"recipientUserId" yaml:"recipientUserId"`
	RecipientName   string     `json:"recipientName,omitempty" yaml:"recipientName,omitempty"`
	RecipientEmail  string     `json:"recipientEmail,omitempty" yaml:"recipientEmail,omitempty"`
	Body            string     `json:"message" yaml:"message"`
	CreatedAt       string     `json:"createdAt" yaml:"createdAt"`
	Read            bool       `json:"read" yaml:"read"`
}

// Thread groups the messages two users exchanged about one item.
type Thread struct {
	ThreadID        string     `json:"threadId" yaml:"threadId"`
	ItemID          string     `json:"itemId" yaml:"itemId"`
	ItemTitle       string     `json:"itemTitle,omitempty" yaml:"itemTitle,omitempty"`
	ItemStatus      ItemStatus `json:"itemStatus,omitempty" yaml:"itemStatus,omitempty"`
	OtherUserID     string     `json:"otherUserId" yaml:"otherUserId"`
	OtherUserName   string     `json:"otherUserName,omitempty" yaml:"otherUserName,omitempty"`
	OtherUserEmail  string     `json:"otherUserEmail,omitempty" yaml:"otherUserEmail,omitempty"`
	LastMessageTime string     `json:"lastMessageTime" yaml:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount" yaml:"unreadCount"`
	Messages        []Message  `json:"messages" yaml:"messages"`
}

// Inbox is the signed-in user's conversations, newest thread first.
type Inbox struct {
	Threads       []Thread `json:"threads" yaml:"threads"`
	TotalThreads  int      `json:"totalThreads" yaml:"totalThreads"`
	TotalMessages int      `json:"totalMessages" yaml:"totalMessages"`
	UnreadCount   int      `json:"unreadCount" yaml:"unreadCount"`
}

// Delivery describes where a contact or reply message ended up.
type Delivery struct {
	MessageID      string `json:"messageId" yaml:"messageId"`
	ItemID         string `json:"itemId,omitempty" yaml:"itemId,omitempty"`
	ThreadID       string `json:"threadId,omitempty" yaml:"threadId,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty" yaml:"recipientEmail,omitempty"`
	Message        string `json:"message,omitempty" yaml:"message,omitempty"`
	SentAt         string `json:"sentAt,omitempty" yaml:"sentAt,omitempty"`
	Warning        string `json:"warning,omitempty" yaml:"warning,omitempty"`
}
