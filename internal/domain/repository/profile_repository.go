package repository

import (
	"context"
	"time"
)

// ProfileOrder and ProfileMessage mirror the collaborator-owned aggregate
// profile shape; the engine only needs id, status/content, timestamp and a
// counterpart identity per item.
type ProfileOrder struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type ProfileData struct {
	UserOrders     []ProfileOrder   `json:"user_orders"`
	UnreadMessages []ProfileMessage `json:"unread_messages"`
}

// ProfileRepository fetches the aggregate profile the notification feed is
// derived from.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*ProfileData, error)
}
