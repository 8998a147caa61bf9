package repository

import (
	"context"

	"trusttrade/internal/domain/entity"
)

// ConversationRepository is the read side of the trade/chat REST API. The
// message list may arrive in arbitrary order; callers sort.
type ConversationRepository interface {
	GetByID(ctx context.Context, conversationID string) (*entity.Conversation, *entity.Trade, error)
	ListMessages(ctx context.Context, conversationID string) ([]entity.Message, error)
}
