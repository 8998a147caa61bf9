package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trusttrade/internal/domain/entity"
	"trusttrade/pkg/auth"
	"trusttrade/pkg/errors"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, auth.NewStaticTokenProvider("tok-123"))
}

func TestGetByIDResolvesParticipants(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JWT tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/chats/conv-1/", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         "conv-1",
			"product_id": "prod-1",
			"buyer": map[string]interface{}{
				"id": "buyer-1", "username": "ada", "full_name": "Ada Buyer",
			},
			"seller": map[string]interface{}{
				"id": "seller-1", "username": "grace", "full_name": "Grace Seller",
				"is_verified": true, "business_name": "Grace's Goods", "location": "Rotterdam", "rating": 4.8,
			},
			"last_message_at": now,
			"trade": map[string]interface{}{
				"id": "trade-1", "product_id": "prod-1", "status": "payment_held", "payment_date": now,
			},
		})
	}))
	defer srv.Close()

	conv, trade, err := newTestClient(srv).GetByID(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "buyer-1", conv.Buyer.Profile().ID)
	assert.Equal(t, "Grace's Goods", entity.DisplayName(conv.Seller))
	assert.Equal(t, entity.RoleSeller, conv.RoleOf("seller-1"))
	assert.Equal(t, entity.RoleBuyer, conv.RoleOf("someone-else"))

	require.NotNil(t, trade)
	assert.Equal(t, "trade-1", trade.ID)
	assert.Equal(t, "conv-1", trade.ConversationID)
	assert.Equal(t, entity.TradeStatusPaymentHeld, trade.Status)
	require.NotNil(t, trade.PaymentDate)
	assert.Equal(t, "trade-1", conv.TradeID)
}

func TestGetByIDWithoutTrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         "conv-2",
			"product_id": "prod-2",
			"buyer":      map[string]interface{}{"id": "b", "username": "b"},
			"seller":     map[string]interface{}{"id": "s", "username": "s"},
		})
	}))
	defer srv.Close()

	conv, trade, err := newTestClient(srv).GetByID(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Empty(t, conv.TradeID)
}

func TestListMessagesMapsToSent(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/conv-1/messages/", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "m1", "sender_id": "seller-1", "sender_name": "grace", "content": "hi", "timestamp": now},
			{"id": "m2", "sender_id": "buyer-1", "sender_name": "ada", "content": "hello", "timestamp": now.Add(time.Minute)},
		})
	}))
	defer srv.Close()

	msgs, err := newTestClient(srv).ListMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "conv-1", msgs[0].ConversationID)
	assert.Equal(t, entity.DeliverySent, msgs[0].Delivery)
	assert.Equal(t, entity.DeliverySent, msgs[1].Delivery)
}

func TestPerformActionSendsBodyAndDecodesTrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/trades/trade-1/action/", r.URL.Path)
		assert.Equal(t, "JWT tok-123", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "make_payment", body["action"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "trade-1", "product_id": "prod-1", "status": "payment_held",
		})
	}))
	defer srv.Close()

	trade, err := newTestClient(srv).PerformAction(context.Background(), "trade-1", entity.ActionMakePayment)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeStatusPaymentHeld, trade.Status)
}

func TestPerformActionMapsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"mark_shipped is not permitted while trade is initial"}`, http.StatusConflict)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).PerformAction(context.Background(), "trade-1", entity.ActionMarkShipped)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "TRADE_ACTION_FAILED"))
}

func TestGetProfileDecodesAggregate(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/userprofile/buyer-1/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user_orders": []map[string]interface{}{
				{"id": "1001", "status": "pending", "created_at": now},
			},
			"unread_messages": []map[string]interface{}{
				{"id": "m1", "chat_id": "conv-1", "sender_id": "seller-1", "sender_name": "grace", "content": "ping", "timestamp": now},
			},
		})
	}))
	defer srv.Close()

	data, err := newTestClient(srv).GetProfile(context.Background(), "buyer-1")
	require.NoError(t, err)
	require.Len(t, data.UserOrders, 1)
	require.Len(t, data.UnreadMessages, 1)
	assert.Equal(t, "pending", data.UserOrders[0].Status)
	assert.Equal(t, "conv-1", data.UnreadMessages[0].ChatID)
}

func TestGetMapsAuthAndServerFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chats/denied/":
			http.Error(w, "credential rejected", http.StatusUnauthorized)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)

	_, _, err := client.GetByID(context.Background(), "denied")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "AUTH_EXPIRED"))

	_, _, err = client.GetByID(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FETCH_FAILED"))
}

func TestExpiredCredentialShortCircuitsRequest(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	expired := &staticError{}
	client := NewClient(srv.URL, expired)

	_, _, err := client.GetByID(context.Background(), "conv-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "AUTH_EXPIRED"))
	assert.Zero(t, hits, "no request goes out without a usable credential")
}

type staticError struct{}

func (s *staticError) Token() (string, error) {
	return "", errors.AuthExpired("bearer token expired, re-authentication required", nil)
}
