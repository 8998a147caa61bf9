package repository

import (
	"context"

	"trusttrade/internal/domain/entity"
)

// TradeRepository mutates trade status through the external collaborator.
// PerformAction returns the confirmed trade; callers must not advance local
// state until it does.
type TradeRepository interface {
	PerformAction(ctx context.Context, tradeID string, action entity.TradeAction) (*entity.Trade, error)
}
