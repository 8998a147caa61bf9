package websocket

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"trusttrade/internal/domain/entity"
)

// Wire event tags. The push transport carries exactly these kinds.
const (
	EventChatHistory     = "chat_history"
	EventChatMessage     = "chat_message"
	EventTypingIndicator = "typing_indicator"
	EventNotification    = "new_message_notification"
)

type envelope struct {
	Type         string            `json:"type" validate:"required"`
	Messages     []wireMessage     `json:"messages,omitempty"`
	Message      *wireMessage      `json:"message,omitempty"`
	IsTyping     *bool             `json:"is_typing,omitempty"`
	Notification *wireNotification `json:"notification,omitempty"`
}

type wireMessage struct {
	ID         string    `json:"id" validate:"required"`
	TempID     string    `json:"temp_id,omitempty"`
	SenderID   string    `json:"sender_id" validate:"required"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
}

type wireNotification struct {
	ID          string    `json:"id" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=order chat favorite system"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at" validate:"required"`
	Read        bool      `json:"read"`
}

// Outbound frames. TempID is the correlation token the server echoes back so
// the optimistic local entry can be reconciled.
type outboundChatMessage struct {
	Type    string `json:"type"`
	TempID  string `json:"temp_id"`
	Content string `json:"content"`
}

type outboundTyping struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

func (m wireMessage) toEntity(conversationID string) entity.Message {
	return entity.Message{
		ID:             m.ID,
		Token:          m.TempID,
		ConversationID: conversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		Delivery:       entity.DeliverySent,
	}
}

func (n wireNotification) toEntity() entity.Notification {
	return entity.Notification{
		ID:          n.ID,
		Type:        entity.NotificationType(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		ReferenceID: n.ReferenceID,
		CreatedAt:   n.CreatedAt,
		Read:        n.Read,
	}
}

func decodeEnvelope(raw []byte, validate *validator.Validate) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case EventChatHistory:
		for i := range env.Messages {
			if err := validate.Struct(env.Messages[i]); err != nil {
				return nil, err
			}
		}
	case EventChatMessage:
		if env.Message == nil {
			return nil, errMissingPayload(env.Type)
		}
		if err := validate.Struct(env.Message); err != nil {
			return nil, err
		}
	case EventTypingIndicator:
		if env.IsTyping == nil {
			return nil, errMissingPayload(env.Type)
		}
	case EventNotification:
		if env.Notification == nil {
			return nil, errMissingPayload(env.Type)
		}
		if err := validate.Struct(env.Notification); err != nil {
			return nil, err
		}
	}

	return &env, nil
}
