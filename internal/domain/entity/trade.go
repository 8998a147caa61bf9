package entity

import (
	"fmt"
	"time"

	"trusttrade/pkg/errors"
)

type TradeStatus string

const (
	TradeStatusInitial     TradeStatus = "initial"
	TradeStatusAccepted    TradeStatus = "accepted"
	TradeStatusPaymentHeld TradeStatus = "payment_held"
	TradeStatusShipped     TradeStatus = "shipped"
	TradeStatusDelivered   TradeStatus = "delivered"
	TradeStatusCompleted   TradeStatus = "completed"
	TradeStatusCancelled   TradeStatus = "cancelled"
)

type TradeAction string

const (
	ActionMakePayment     TradeAction = "make_payment"
	ActionMarkShipped     TradeAction = "mark_shipped"
	ActionConfirmReceived TradeAction = "confirm_received"
	ActionConfirmDelivery TradeAction = "confirm_delivery"
	ActionCancelTrade     TradeAction = "cancel_trade"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Trade is the escrow-style transaction attached to a conversation. Status is
// mutated only through Apply; there is no direct external write.
type Trade struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	ProductID      string      `json:"product_id"`
	Status         TradeStatus `json:"status"`
	Disputed       bool        `json:"disputed"`

	AcceptedDate  *time.Time `json:"accepted_date,omitempty"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
	ShippedDate   *time.Time `json:"shipped_date,omitempty"`
	DeliveredDate *time.Time `json:"delivered_date,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	CancelledDate *time.Time `json:"cancelled_date,omitempty"`
}

type transition struct {
	role Role
	from map[TradeStatus]bool
	to   TradeStatus
}

// Role-gated transition table. confirm_delivery is accepted from shipped as
// well as delivered: the buyer's confirm_received and the seller's finalize
// form a single combined gate toward completion, so a seller finalize never
// deadlocks on a missing buyer confirmation.
var transitions = map[TradeAction]transition{
	ActionMakePayment: {
		role: RoleBuyer,
		from: map[TradeStatus]bool{TradeStatusInitial: true, TradeStatusAccepted: true},
		to:   TradeStatusPaymentHeld,
	},
	ActionMarkShipped: {
		role: RoleSeller,
		from: map[TradeStatus]bool{TradeStatusPaymentHeld: true},
		to:   TradeStatusShipped,
	},
	ActionConfirmReceived: {
		role: RoleBuyer,
		from: map[TradeStatus]bool{TradeStatusShipped: true},
		to:   TradeStatusDelivered,
	},
	ActionConfirmDelivery: {
		role: RoleSeller,
		from: map[TradeStatus]bool{TradeStatusShipped: true, TradeStatusDelivered: true},
		to:   TradeStatusCompleted,
	},
}

func (s TradeStatus) Terminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCancelled
}

// Validate checks whether action is legal for (role, current status) without
// mutating anything. Used to reject before a network call and to disable
// controls in the UI.
func (t *Trade) Validate(role Role, action TradeAction) error {
	if t.Status.Terminal() {
		return errors.InvalidTransition(fmt.Sprintf("trade is %s, no further actions permitted", t.Status))
	}

	if action == ActionCancelTrade {
		return nil
	}

	tr, ok := transitions[action]
	if !ok {
		return errors.InvalidTransition(fmt.Sprintf("unknown trade action %q", action))
	}
	if tr.role != role {
		return errors.InvalidTransition(fmt.Sprintf("%s cannot perform %s", role, action))
	}
	if !tr.from[t.Status] {
		return errors.InvalidTransition(fmt.Sprintf("%s is not permitted while trade is %s", action, t.Status))
	}
	return nil
}

// NextStatus reports the destination of action without applying it.
func (t *Trade) NextStatus(role Role, action TradeAction) (TradeStatus, error) {
	if err := t.Validate(role, action); err != nil {
		return t.Status, err
	}
	if action == ActionCancelTrade {
		return TradeStatusCancelled, nil
	}
	return transitions[action].to, nil
}

// Apply advances the trade and stamps the destination-state date. Invalid
// requests leave the trade untouched. Stage dates use idempotent-set
// semantics: a date already stamped is never rewritten.
func (t *Trade) Apply(role Role, action TradeAction, at time.Time) error {
	next, err := t.NextStatus(role, action)
	if err != nil {
		return err
	}

	t.Status = next
	t.stampDate(next, at)
	return nil
}

func (t *Trade) stampDate(status TradeStatus, at time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			stamped := at
			*field = &stamped
		}
	}

	switch status {
	case TradeStatusAccepted:
		set(&t.AcceptedDate)
	case TradeStatusPaymentHeld:
		set(&t.PaymentDate)
	case TradeStatusShipped:
		set(&t.ShippedDate)
	case TradeStatusDelivered:
		set(&t.DeliveredDate)
	case TradeStatusCompleted:
		set(&t.CompletedDate)
	case TradeStatusCancelled:
		set(&t.CancelledDate)
	}
}

// AllowedActions is the lookup table the UI binds buttons to: actions legal
// for role at the current status. Cancel is offered to both roles on any
// non-terminal trade.
func (t *Trade) AllowedActions(role Role) []TradeAction {
	if t.Status.Terminal() {
		return nil
	}

	var actions []TradeAction
	for _, action := range []TradeAction{ActionMakePayment, ActionMarkShipped, ActionConfirmReceived, ActionConfirmDelivery} {
		tr := transitions[action]
		if tr.role == role && tr.from[t.Status] {
			actions = append(actions, action)
		}
	}
	actions = append(actions, ActionCancelTrade)
	return actions
}
