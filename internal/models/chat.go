package models

import (
	"bytes"
	"encoding/json"
	"time"
)

type Participant struct {
	User User `json:"user"`
}

// Chat is a direct conversation between two users.
type Chat struct {
	ID           int64         `json:"id" db:"id"`
	Participants []Participant `json:"participants"`
	LastActivity time.Time     `json:"updatedAt,omitempty" db:"updated_at"`
}

// Peer returns the participant that is not self.
func (c Chat) Peer(self UserID) (User, bool) {
	for _, p := range c.Participants {
		if p.User.ID != self {
			return p.User, true
		}
	}
	return User{}, false
}

func (c Chat) HasParticipant(id UserID) bool {
	for _, p := range c.Participants {
		if p.User.ID == id {
			return true
		}
	}
	return false
}

type ChatRef struct {
	ID int64 `json:"id"`
}

type Message struct {
	ID       int64     `json:"id" db:"id"`
	ChatID   int64     `json:"chatId,omitempty" db:"chat_id"`
	Chat     *ChatRef  `json:"chat,omitempty"`
	Sender   UserRef   `json:"sender"`
	Receiver UserRef   `json:"receiver"`
	Content  string    `json:"content" db:"content"`
	IsRead   bool      `json:"isRead" db:"is_read"`
	SentAt   time.Time `json:"sentAt" db:"sent_at"`

	// ClientKey is set only on local placeholders awaiting their echo.
	ClientKey string `json:"-"`
}

// ConversationID returns the chat id from whichever field the payload used.
func (m Message) ConversationID() int64 {
	if m.ChatID != 0 {
		return m.ChatID
	}
	if m.Chat != nil {
		return m.Chat.ID
	}
	return 0
}

func (m Message) Pending() bool { return m.ClientKey != "" && m.ID == 0 }

// Realtime event names.
const (
	EventRegister    = "register"
	EventJoinChat    = "joinChat"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
	EventSystem      = "system"
)

// WebSocketMessage is the envelope carried by every realtime frame.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewWebSocketMessage(eventType string, payload interface{}) (WebSocketMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return WebSocketMessage{}, err
	}
	return WebSocketMessage{Type: eventType, Payload: data}, nil
}

type RegisterPayload struct {
	UserID UserID `json:"userId"`
}

type JoinChatPayload struct {
	ChatID int64 `json:"chatId"`
}

type SendMessagePayload struct {
	ChatID     int64  `json:"chatId"`
	SenderID   UserID `json:"senderId"`
	ReceiverID UserID `json:"receiverId"`
	Content    string `json:"content"`
}

type CreateChatRequest struct {
	UserIDs []UserID `json:"userIds"`
}

type MarkReadRequest struct {
	ChatID int64  `json:"chatId"`
	UserID UserID `json:"userId"`
}

// DecodeMessage decodes a newMessage payload. An empty or null payload is an
// error since a message without an id cannot be deduplicated.
func DecodeMessage(payload json.RawMessage) (Message, error) {
	var m Message
	if len(bytes.TrimSpace(payload)) == 0 {
		return m, errEmptyPayload
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return m, err
	}
	if m.ID == 0 {
		return m, errMissingID
	}
	return m, nil
}
