package entity

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationOrder    NotificationType = "order"
	NotificationChat     NotificationType = "chat"
	NotificationFavorite NotificationType = "favorite"
	NotificationSystem   NotificationType = "system"
)

// Notification is a projection derived from order, chat and favorite events,
// not a primary entity. IDs are source-derived so repeated fetches merge
// idempotently.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ReferenceID string           `json:"reference_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Read        bool             `json:"read"`
}

// OrderNotificationID and ChatNotificationID build the stable ids that
// guarantee dedup across polled history and live pushes.
func OrderNotificationID(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

func ChatNotificationID(chatID, messageID string) string {
	return fmt.Sprintf("chat-%s-%s", chatID, messageID)
}
