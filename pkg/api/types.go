package api

import (
	"encoding/json"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// OrderView is one row of GET /order_book
type OrderView struct {
	SenderPK     string      `json:"sender_pk"`
	ReceiverPK   string      `json:"receiver_pk"`
	BuyCurrency  string      `json:"buy_currency"`
	SellCurrency string      `json:"sell_currency"`
	BuyAmount    json.Number `json:"buy_amount"`
	SellAmount   json.Number `json:"sell_amount"`
	Signature    string      `json:"signature"`
}

// OrderBookResponse wraps the listing as {"data": [...]}
type OrderBookResponse struct {
	Data []OrderView `json:"data"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newOrderView(o *order.Order) OrderView {
	return OrderView{
		SenderPK:     o.SenderPK,
		ReceiverPK:   o.ReceiverPK,
		BuyCurrency:  o.BuyCurrency,
		SellCurrency: o.SellCurrency,
		BuyAmount:    json.Number(o.BuyAmount.String()),
		SellAmount:   json.Number(o.SellAmount.String()),
		Signature:    o.Signature,
	}
}

// ==============================
// WebSocket Message Types
// ==============================

const ChannelFills = "fills"

// WSSubscribeRequest is sent by clients: {"op": "subscribe", "channels": ["fills"]}
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// WSAck confirms a subscribe or unsubscribe request
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// FillOrder is an order as it appears in a fill update
type FillOrder struct {
	ID             uint64      `json:"id"`
	SenderPK       string      `json:"sender_pk"`
	BuyCurrency    string      `json:"buy_currency"`
	SellCurrency   string      `json:"sell_currency"`
	BuyAmount      json.Number `json:"buy_amount"`
	SellAmount     json.Number `json:"sell_amount"`
	CounterpartyID *uint64     `json:"counterparty_id,omitempty"`
	CreatorID      *uint64     `json:"creator_id,omitempty"`
}

// FillUpdate is pushed on the fills channel after a match commits
type FillUpdate struct {
	Type      string      `json:"type"` // "fill"
	Filled    []FillOrder `json:"filled"`
	Created   []FillOrder `json:"created"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}

func newFillOrder(o *order.Order) FillOrder {
	return FillOrder{
		ID:             o.ID,
		SenderPK:       o.SenderPK,
		BuyCurrency:    o.BuyCurrency,
		SellCurrency:   o.SellCurrency,
		BuyAmount:      json.Number(o.BuyAmount.String()),
		SellAmount:     json.Number(o.SellAmount.String()),
		CounterpartyID: o.CounterpartyID,
		CreatorID:      o.CreatorID,
	}
}
