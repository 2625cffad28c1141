package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a unilateral intent to swap SellAmount of SellCurrency for
// BuyAmount of BuyCurrency. Implied price is BuyAmount / SellAmount.
//
// Filled == nil means the order is open and may be matched. Once Filled is set,
// Filled and CounterpartyID never change again.
type Order struct {
	ID             uint64          `json:"id"`
	SenderPK       string          `json:"sender_pk"`
	ReceiverPK     string          `json:"receiver_pk"`
	BuyCurrency    string          `json:"buy_currency"`
	SellCurrency   string          `json:"sell_currency"`
	BuyAmount      decimal.Decimal `json:"buy_amount"`
	SellAmount     decimal.Decimal `json:"sell_amount"`
	Filled         *time.Time      `json:"filled,omitempty"`
	CounterpartyID *uint64         `json:"counterparty_id,omitempty"`
	CreatorID      *uint64         `json:"creator_id,omitempty"`
	Signature      string          `json:"signature,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewOrder builds an unpersisted, unfilled order from a verified payload.
func NewOrder(p *Payload, signature string, now time.Time) *Order {
	return &Order{
		SenderPK:     p.SenderPK,
		ReceiverPK:   p.ReceiverPK,
		BuyCurrency:  p.BuyCurrency,
		SellCurrency: p.SellCurrency,
		BuyAmount:    p.BuyAmount,
		SellAmount:   p.SellAmount,
		Signature:    signature,
		CreatedAt:    now,
	}
}

// IsOpen reports whether the order can still be matched
func (o *Order) IsOpen() bool {
	return o.Filled == nil
}

// Fill marks o as filled against counterparty at t.
// It is a no-op on an already filled order.
func (o *Order) Fill(counterparty uint64, t time.Time) {
	if o.Filled != nil {
		return
	}
	filled := t
	o.Filled = &filled
	o.CounterpartyID = &counterparty
}

// Clone returns a deep copy, so stores can hand out orders without sharing pointers.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Filled != nil {
		t := *o.Filled
		cp.Filled = &t
	}
	if o.CounterpartyID != nil {
		id := *o.CounterpartyID
		cp.CounterpartyID = &id
	}
	if o.CreatorID != nil {
		id := *o.CreatorID
		cp.CreatorID = &id
	}
	return &cp
}

// Log is an append-only audit record of a rejected submission.
type Log struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
