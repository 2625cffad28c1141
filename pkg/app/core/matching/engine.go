// Package matching pairs an incoming order against the oldest open order that
// crosses it and settles any imbalance as a new resting order.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/util"
)

// Result describes what one submission did to the book.
type Result struct {
	Accepted bool
	// Order is the submitted order as persisted, with its ID assigned.
	Order *order.Order
	// Filled holds the submitted order and its counterparty when they matched.
	Filled []*order.Order
	// Created holds the remainder order produced by a partial match, if any.
	Created []*order.Order
}

// Matched reports whether the submission filled against a resting order
func (r Result) Matched() bool {
	return len(r.Filled) > 0
}

type Engine struct {
	store  order.Store
	clock  util.Clock
	logger *zap.SugaredLogger
}

func NewEngine(store order.Store, clock util.Clock, logger *zap.SugaredLogger) *Engine {
	return &Engine{store: store, clock: clock, logger: logger}
}

// Crosses reports whether resting order e can fill incoming order o: the
// currencies are mirrored and e's implied price is at least as generous as o's
// (e.Sell/e.Buy >= o.Buy/o.Sell, compared without division).
func Crosses(e, o *order.Order) bool {
	return e.BuyCurrency == o.SellCurrency &&
		e.SellCurrency == o.BuyCurrency &&
		e.SellAmount.Mul(o.SellAmount).GreaterThanOrEqual(e.BuyAmount.Mul(o.BuyAmount))
}

// Submit persists o and matches it against the oldest crossing open order,
// all in one unit of work. On any error nothing is written.
//
// The engine trusts o: shape and signature checks happen before it is called.
// A remainder order is inserted open but is not matched in this call.
func (e *Engine) Submit(ctx context.Context, o *order.Order) (Result, error) {
	if o == nil {
		return Result{}, errors.New("submit: nil order")
	}

	var res Result
	err := e.store.Update(ctx, func(tx order.Tx) error {
		res = Result{}

		incoming := o.Clone()
		if err := tx.InsertOrder(incoming); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		res.Order = incoming

		existing, err := tx.FindFirstOrder(func(c *order.Order) bool {
			return c.ID != incoming.ID && c.IsOpen() && Crosses(c, incoming)
		})
		if err != nil {
			return fmt.Errorf("find counterparty: %w", err)
		}
		if existing == nil {
			return nil
		}

		now := e.clock.Now()
		incoming.Fill(existing.ID, now)
		existing.Fill(incoming.ID, now)
		if err := tx.UpdateOrder(incoming); err != nil {
			return fmt.Errorf("fill order %d: %w", incoming.ID, err)
		}
		if err := tx.UpdateOrder(existing); err != nil {
			return fmt.Errorf("fill order %d: %w", existing.ID, err)
		}
		res.Filled = []*order.Order{incoming, existing}

		if child := Remainder(existing, incoming, now); child != nil {
			if err := tx.InsertOrder(child); err != nil {
				return fmt.Errorf("insert remainder: %w", err)
			}
			res.Created = []*order.Order{child}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Accepted = true
	if res.Matched() {
		e.logger.Infow("orders_matched",
			"order_id", res.Order.ID,
			"counterparty_id", *res.Order.CounterpartyID,
			"remainders", len(res.Created))
	} else {
		e.logger.Debugw("order_resting", "order_id", res.Order.ID)
	}
	return res, nil
}

// Remainder returns the unfilled balance of a match between resting order e and
// incoming order o as a new open order, or nil when the amounts balance exactly.
//
// The side that was only partly satisfied keeps its identity and implied price:
//   - e.Sell < o.Buy: o is still owed o.Buy-e.Sell of its buy currency.
//   - e.Sell > o.Buy: e still has e.Sell-o.Buy of its sell currency to sell.
//
// A balance too small to represent on both sides is dropped rather than
// persisted as an order with a zero amount.
func Remainder(e, o *order.Order, now time.Time) *order.Order {
	var (
		parent    *order.Order
		buy, sell decimal.Decimal
	)
	switch e.SellAmount.Cmp(o.BuyAmount) {
	case -1:
		buy = o.BuyAmount.Sub(e.SellAmount)
		// sell = buy / (o.Buy / o.Sell)
		sell = quo(buy.Mul(o.SellAmount), o.BuyAmount)
		parent = o
	case 1:
		sell = e.SellAmount.Sub(o.BuyAmount)
		// buy = sell / (e.Sell / e.Buy)
		buy = quo(sell.Mul(e.BuyAmount), e.SellAmount)
		parent = e
	default:
		return nil
	}
	if !buy.IsPositive() || !sell.IsPositive() {
		return nil
	}
	return childOf(parent, buy, sell, now)
}

// quo divides keeping divisionPrecision significant fractional digits beyond
// the finest scale of its operands, so tiny amounts do not round to zero.
func quo(num, den decimal.Decimal) decimal.Decimal {
	scale := fracDigits(num)
	if d := fracDigits(den); d > scale {
		scale = d
	}
	return num.DivRound(den, scale+divisionPrecision)
}

const divisionPrecision = 16

func fracDigits(d decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

func childOf(parent *order.Order, buy, sell decimal.Decimal, now time.Time) *order.Order {
	creator := parent.ID
	return &order.Order{
		SenderPK:     parent.SenderPK,
		ReceiverPK:   parent.ReceiverPK,
		BuyCurrency:  parent.BuyCurrency,
		SellCurrency: parent.SellCurrency,
		BuyAmount:    buy,
		SellAmount:   sell,
		CreatorID:    &creator,
		CreatedAt:    now,
	}
}
