package entity

import "time"

// Conversation binds two trade participants and one product/trade. Created
// when a buyer initiates contact on a product; never deleted, only archived.
type Conversation struct {
	ID            string      `json:"id"`
	Buyer         Participant `json:"buyer"`
	Seller        Participant `json:"seller"`
	ProductID     string      `json:"product_id"`
	TradeID       string      `json:"trade_id"`
	LastMessageAt time.Time   `json:"last_message_at"`
}

// RoleOf reports which side of the trade userID is on. Defaults to buyer for
// an unknown id so a stray viewer never sees seller controls.
func (c *Conversation) RoleOf(userID string) Role {
	if c.Seller != nil && c.Seller.Profile().ID == userID {
		return RoleSeller
	}
	return RoleBuyer
}
