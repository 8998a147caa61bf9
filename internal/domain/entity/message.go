package entity

import "time"

type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

// Message belongs to exactly one conversation. ID is server-assigned and
// empty until acknowledged; optimistic local entries are identified by Token
// (the client-generated correlation token) until reconciliation.
type Message struct {
	ID             string        `json:"id,omitempty"`
	Token          string        `json:"temp_id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	SenderName     string        `json:"sender_name,omitempty"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	Delivery       DeliveryState `json:"delivery"`
}
