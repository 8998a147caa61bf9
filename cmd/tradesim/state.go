package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"trusttrade/internal/domain/entity"
	"trusttrade/internal/domain/repository"
	"trusttrade/pkg/errors"
)

// simMessage is the simulator's stored message shape; Status flips to
// delivered when a recipient was online in the room at broadcast time.
type simMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

type simParticipant struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	FullName     string  `json:"full_name"`
	Verified     bool    `json:"is_verified"`
	BusinessName string  `json:"business_name,omitempty"`
	Location     string  `json:"location,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
}

type simConversation struct {
	ID            string         `json:"id"`
	ProductID     string         `json:"product_id"`
	Buyer         simParticipant `json:"buyer"`
	Seller        simParticipant `json:"seller"`
	LastMessageAt time.Time      `json:"last_message_at"`
	Trade         *entity.Trade  `json:"trade"`
}

// state is the simulator's in-memory world: conversations, trades, message
// logs and the aggregate profile data. No persistence by design.
type state struct {
	mu            sync.Mutex
	conversations map[string]*simConversation
	messages      map[string][]simMessage
	orders        []repository.ProfileOrder
}

func newState() *state {
	s := &state{
		conversations: make(map[string]*simConversation),
		messages:      make(map[string][]simMessage),
	}
	s.seed()
	return s
}

// seed creates one demo conversation so a client can connect immediately.
func (s *state) seed() {
	now := time.Now()
	conv := &simConversation{
		ID:        "demo",
		ProductID: "prod-1",
		Buyer: simParticipant{
			ID:       "buyer-1",
			Username: "ada",
			FullName: "Ada Buyer",
		},
		Seller: simParticipant{
			ID:           "seller-1",
			Username:     "grace",
			FullName:     "Grace Seller",
			Verified:     true,
			BusinessName: "Grace's Goods",
			Location:     "Rotterdam",
			Rating:       4.8,
		},
		LastMessageAt: now,
		Trade: &entity.Trade{
			ID:             "trade-demo",
			ConversationID: "demo",
			ProductID:      "prod-1",
			Status:         entity.TradeStatusInitial,
		},
	}
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = []simMessage{
		{
			ID:         uuid.New().String(),
			SenderID:   conv.Seller.ID,
			SenderName: conv.Seller.Username,
			Content:    "Hi! Let me know if you have questions about the listing.",
			Timestamp:  now.Add(-time.Hour),
			Status:     "sent",
		},
	}
	s.orders = []repository.ProfileOrder{
		{ID: "1001", Status: "pending", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "1000", Status: "shipped", CreatedAt: now.Add(-26 * time.Hour)},
	}
}

func (s *state) conversation(id string) (*simConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, errors.NotFound("conversation", nil)
	}
	return conv, nil
}

func (s *state) history(conversationID string) []simMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]simMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (s *state) appendMessage(conversationID string, msg simMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	if conv, ok := s.conversations[conversationID]; ok {
		conv.LastMessageAt = msg.Timestamp
	}
}

// applyTradeAction runs the shared lifecycle rules with the caller's role and
// returns the confirmed trade.
func (s *state) applyTradeAction(tradeID, userID string, action entity.TradeAction) (*entity.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.Trade == nil || conv.Trade.ID != tradeID {
			continue
		}

		var role entity.Role
		switch userID {
		case conv.Buyer.ID:
			role = entity.RoleBuyer
		case conv.Seller.ID:
			role = entity.RoleSeller
		default:
			return nil, errors.Forbidden("user is not a participant in this trade", nil)
		}

		if err := conv.Trade.Apply(role, action, time.Now()); err != nil {
			return nil, err
		}
		snapshot := *conv.Trade
		return &snapshot, nil
	}

	return nil, errors.NotFound("trade", nil)
}

// profile builds the aggregate profile payload: orders plus messages other
// users sent that userID has not read (the simulator treats everything newer
// than an hour as unread).
func (s *state) profile(userID string) *repository.ProfileData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &repository.ProfileData{UserOrders: s.orders}
	cutoff := time.Now().Add(-time.Hour)
	for convID, msgs := range s.messages {
		for _, m := range msgs {
			if m.SenderID != userID && m.Timestamp.After(cutoff) {
				data.UnreadMessages = append(data.UnreadMessages, repository.ProfileMessage{
					ID:         m.ID,
					ChatID:     convID,
					SenderID:   m.SenderID,
					SenderName: m.SenderName,
					Content:    m.Content,
					Timestamp:  m.Timestamp,
				})
			}
		}
	}
	return data
}
