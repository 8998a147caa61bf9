package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trusttrade/pkg/errors"
)

func newTrade(status TradeStatus) *Trade {
	return &Trade{
		ID:             "trade-1",
		ConversationID: "conv-1",
		ProductID:      "prod-1",
		Status:         status,
	}
}

func TestApplyHappyPath(t *testing.T) {
	trade := newTrade(TradeStatusInitial)
	now := time.Now()

	require.NoError(t, trade.Apply(RoleBuyer, ActionMakePayment, now))
	assert.Equal(t, TradeStatusPaymentHeld, trade.Status)
	require.NotNil(t, trade.PaymentDate)

	require.NoError(t, trade.Apply(RoleSeller, ActionMarkShipped, now))
	assert.Equal(t, TradeStatusShipped, trade.Status)
	require.NotNil(t, trade.ShippedDate)

	require.NoError(t, trade.Apply(RoleBuyer, ActionConfirmReceived, now))
	assert.Equal(t, TradeStatusDelivered, trade.Status)

	require.NoError(t, trade.Apply(RoleSeller, ActionConfirmDelivery, now))
	assert.Equal(t, TradeStatusCompleted, trade.Status)
	require.NotNil(t, trade.CompletedDate)
}

func TestApplyRejectsWrongRole(t *testing.T) {
	cases := []struct {
		name   string
		status TradeStatus
		role   Role
		action TradeAction
	}{
		{"seller cannot pay", TradeStatusInitial, RoleSeller, ActionMakePayment},
		{"buyer cannot ship", TradeStatusPaymentHeld, RoleBuyer, ActionMarkShipped},
		{"seller cannot confirm receipt", TradeStatusShipped, RoleSeller, ActionConfirmReceived},
		{"buyer cannot finalize", TradeStatusShipped, RoleBuyer, ActionConfirmDelivery},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := newTrade(tc.status)
			err := trade.Apply(tc.role, tc.action, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, "INVALID_TRANSITION"))
			assert.Equal(t, tc.status, trade.Status, "status must not mutate on rejection")
		})
	}
}

func TestApplyRejectsWrongStatus(t *testing.T) {
	cases := []struct {
		name   string
		status TradeStatus
		role   Role
		action TradeAction
	}{
		{"pay twice", TradeStatusPaymentHeld, RoleBuyer, ActionMakePayment},
		{"ship before payment", TradeStatusInitial, RoleSeller, ActionMarkShipped},
		{"confirm receipt before shipping", TradeStatusPaymentHeld, RoleBuyer, ActionConfirmReceived},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := newTrade(tc.status)
			err := trade.Apply(tc.role, tc.action, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, "INVALID_TRANSITION"))
			assert.Equal(t, tc.status, trade.Status)
		})
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	allActions := []TradeAction{ActionMakePayment, ActionMarkShipped, ActionConfirmReceived, ActionConfirmDelivery, ActionCancelTrade}

	for _, status := range []TradeStatus{TradeStatusCompleted, TradeStatusCancelled} {
		for _, role := range []Role{RoleBuyer, RoleSeller} {
			for _, action := range allActions {
				trade := newTrade(status)
				err := trade.Apply(role, action, time.Now())
				require.Error(t, err, "status=%s role=%s action=%s", status, role, action)
				assert.True(t, errors.Is(err, "INVALID_TRANSITION"))
				assert.Equal(t, status, trade.Status)
			}
		}
	}
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	for _, status := range []TradeStatus{TradeStatusInitial, TradeStatusAccepted, TradeStatusPaymentHeld, TradeStatusShipped, TradeStatusDelivered} {
		for _, role := range []Role{RoleBuyer, RoleSeller} {
			trade := newTrade(status)
			require.NoError(t, trade.Apply(role, ActionCancelTrade, time.Now()), "status=%s role=%s", status, role)
			assert.Equal(t, TradeStatusCancelled, trade.Status)
			assert.NotNil(t, trade.CancelledDate)
		}
	}
}

func TestSellerCanFinalizeFromShipped(t *testing.T) {
	trade := newTrade(TradeStatusShipped)
	require.NoError(t, trade.Apply(RoleSeller, ActionConfirmDelivery, time.Now()))
	assert.Equal(t, TradeStatusCompleted, trade.Status)
}

func TestStageDatesAreNeverRewritten(t *testing.T) {
	trade := newTrade(TradeStatusInitial)
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, trade.Apply(RoleBuyer, ActionMakePayment, first))
	require.NotNil(t, trade.PaymentDate)
	assert.Equal(t, first, *trade.PaymentDate)

	// A repeated stamp of the same stage must be a no-op.
	trade.stampDate(TradeStatusPaymentHeld, first.Add(time.Hour))
	assert.Equal(t, first, *trade.PaymentDate)
}

func TestAllowedActionsTable(t *testing.T) {
	cases := []struct {
		status TradeStatus
		role   Role
		want   []TradeAction
	}{
		{TradeStatusInitial, RoleBuyer, []TradeAction{ActionMakePayment, ActionCancelTrade}},
		{TradeStatusAccepted, RoleBuyer, []TradeAction{ActionMakePayment, ActionCancelTrade}},
		{TradeStatusInitial, RoleSeller, []TradeAction{ActionCancelTrade}},
		{TradeStatusPaymentHeld, RoleSeller, []TradeAction{ActionMarkShipped, ActionCancelTrade}},
		{TradeStatusPaymentHeld, RoleBuyer, []TradeAction{ActionCancelTrade}},
		{TradeStatusShipped, RoleBuyer, []TradeAction{ActionConfirmReceived, ActionCancelTrade}},
		{TradeStatusShipped, RoleSeller, []TradeAction{ActionConfirmDelivery, ActionCancelTrade}},
		{TradeStatusDelivered, RoleSeller, []TradeAction{ActionConfirmDelivery, ActionCancelTrade}},
		{TradeStatusCompleted, RoleBuyer, nil},
		{TradeStatusCancelled, RoleSeller, nil},
	}

	for _, tc := range cases {
		trade := newTrade(tc.status)
		assert.Equal(t, tc.want, trade.AllowedActions(tc.role), "status=%s role=%s", tc.status, tc.role)
	}
}

// End-to-end scenario: buyer pays, seller ships, buyer attempting the
// seller's action is rejected without touching the status.
func TestTradeScenario(t *testing.T) {
	trade := newTrade(TradeStatusInitial)
	now := time.Now()

	require.NoError(t, trade.Apply(RoleBuyer, ActionMakePayment, now))
	assert.Equal(t, TradeStatusPaymentHeld, trade.Status)
	assert.NotNil(t, trade.PaymentDate)

	require.NoError(t, trade.Apply(RoleSeller, ActionMarkShipped, now))
	assert.Equal(t, TradeStatusShipped, trade.Status)
	assert.NotNil(t, trade.ShippedDate)

	err := trade.Apply(RoleBuyer, ActionMarkShipped, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "INVALID_TRANSITION"))
	assert.Equal(t, TradeStatusShipped, trade.Status)
}
