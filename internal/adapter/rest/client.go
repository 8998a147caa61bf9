package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trusttrade/internal/domain/entity"
	"trusttrade/internal/domain/repository"
	"trusttrade/pkg/auth"
	"trusttrade/pkg/errors"
)

// Client talks to the trade/chat REST API. It implements
// repository.ConversationRepository, repository.TradeRepository and
// repository.ProfileRepository.
type Client struct {
	baseURL string
	tokens  auth.TokenProvider
	http    *http.Client
}

func NewClient(baseURL string, tokens auth.TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type profileDTO struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	FullName     string  `json:"full_name"`
	Verified     bool    `json:"is_verified"`
	BusinessName string  `json:"business_name"`
	Location     string  `json:"location"`
	Rating       float64 `json:"rating"`
}

type conversationDTO struct {
	ID            string      `json:"id"`
	ProductID     string      `json:"product_id"`
	Buyer         profileDTO  `json:"buyer"`
	Seller        profileDTO  `json:"seller"`
	LastMessageAt time.Time   `json:"last_message_at"`
	Trade         *tradeDTO   `json:"trade"`
}

type tradeDTO struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	Status        string     `json:"status"`
	Disputed      bool       `json:"disputed"`
	AcceptedDate  *time.Time `json:"accepted_date"`
	PaymentDate   *time.Time `json:"payment_date"`
	ShippedDate   *time.Time `json:"shipped_date"`
	DeliveredDate *time.Time `json:"delivered_date"`
	CompletedDate *time.Time `json:"completed_date"`
	CancelledDate *time.Time `json:"cancelled_date"`
}

type messageDTO struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// GetByID fetches a conversation and its trade. Participants are resolved to
// the Buyer/Seller union once, here, instead of probing optional fields later.
func (c *Client) GetByID(ctx context.Context, conversationID string) (*entity.Conversation, *entity.Trade, error) {
	var dto conversationDTO
	if err := c.get(ctx, fmt.Sprintf("/api/chats/%s/", conversationID), &dto); err != nil {
		return nil, nil, err
	}

	conv := &entity.Conversation{
		ID:        dto.ID,
		ProductID: dto.ProductID,
		Buyer: entity.Buyer{
			Info: entity.Profile{
				ID:       dto.Buyer.ID,
				Username: dto.Buyer.Username,
				FullName: dto.Buyer.FullName,
				Verified: dto.Buyer.Verified,
			},
		},
		Seller: entity.Seller{
			Info: entity.Profile{
				ID:       dto.Seller.ID,
				Username: dto.Seller.Username,
				FullName: dto.Seller.FullName,
				Verified: dto.Seller.Verified,
			},
			Business: entity.BusinessInfo{
				BusinessName: dto.Seller.BusinessName,
				Location:     dto.Seller.Location,
				Rating:       dto.Seller.Rating,
			},
		},
		LastMessageAt: dto.LastMessageAt,
	}

	var trade *entity.Trade
	if dto.Trade != nil {
		trade = dto.Trade.toEntity(conversationID)
		conv.TradeID = trade.ID
	}
	return conv, trade, nil
}

// ListMessages returns the history in whatever order the server produced it;
// the message store sorts.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]entity.Message, error) {
	var dtos []messageDTO
	if err := c.get(ctx, fmt.Sprintf("/api/chats/%s/messages/", conversationID), &dtos); err != nil {
		return nil, err
	}

	messages := make([]entity.Message, 0, len(dtos))
	for _, d := range dtos {
		messages = append(messages, entity.Message{
			ID:             d.ID,
			ConversationID: conversationID,
			SenderID:       d.SenderID,
			SenderName:     d.SenderName,
			Content:        d.Content,
			Timestamp:      d.Timestamp,
			Delivery:       entity.DeliverySent,
		})
	}
	return messages, nil
}

// PerformAction requests a trade transition. The returned trade is the
// server-confirmed state; nothing is assumed before it arrives.
func (c *Client) PerformAction(ctx context.Context, tradeID string, action entity.TradeAction) (*entity.Trade, error) {
	body, err := json.Marshal(map[string]string{"action": string(action)})
	if err != nil {
		return nil, errors.Internal("failed to encode trade action", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/api/trades/%s/action/", tradeID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.TradeActionFailed("trade action request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.TradeActionFailed(
			fmt.Sprintf("trade action %s rejected with status %d", action, resp.StatusCode),
			readBodyErr(resp.Body))
	}

	var dto tradeDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, errors.TradeActionFailed("failed to decode confirmed trade", err)
	}
	return dto.toEntity(""), nil
}

// GetProfile fetches the aggregate profile the notification feed is built from.
func (c *Client) GetProfile(ctx context.Context, userID string) (*repository.ProfileData, error) {
	var data repository.ProfileData
	if err := c.get(ctx, fmt.Sprintf("/api/userprofile/%s/", userID), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.FetchFailed(fmt.Sprintf("GET %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.AuthExpired(fmt.Sprintf("GET %s rejected the credential", path), readBodyErr(resp.Body))
	}
	if resp.StatusCode != http.StatusOK {
		return errors.FetchFailed(fmt.Sprintf("GET %s returned status %d", path, resp.StatusCode), readBodyErr(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.FetchFailed(fmt.Sprintf("failed to decode response of GET %s", path), err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "JWT "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (d *tradeDTO) toEntity(conversationID string) *entity.Trade {
	return &entity.Trade{
		ID:             d.ID,
		ConversationID: conversationID,
		ProductID:      d.ProductID,
		Status:         entity.TradeStatus(d.Status),
		Disputed:       d.Disputed,
		AcceptedDate:   d.AcceptedDate,
		PaymentDate:    d.PaymentDate,
		ShippedDate:    d.ShippedDate,
		DeliveredDate:  d.DeliveredDate,
		CompletedDate:  d.CompletedDate,
		CancelledDate:  d.CancelledDate,
	}
}

func readBodyErr(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(raw) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.TrimSpace(string(raw)))
}
