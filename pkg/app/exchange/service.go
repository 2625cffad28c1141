// Package exchange is the order intake boundary: it validates, authenticates,
// and hands signed orders to the matching engine, answering every submission
// with a plain accept/reject.
package exchange

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/app/core/matching"
	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/util"
)

type Verifier interface {
	Verify(p *order.Payload, sig string) bool
}

type Matcher interface {
	Submit(ctx context.Context, o *order.Order) (matching.Result, error)
}

// Recorder keeps rejected submissions. It must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, raw any)
}

type Book interface {
	Orders(ctx context.Context) ([]*order.Order, error)
}

// Config wires a Service. OnFill is optional and runs after a match commits.
type Config struct {
	Verifier Verifier
	Matcher  Matcher
	Recorder Recorder
	Book     Book
	Clock    util.Clock
	Logger   *zap.SugaredLogger
	OnFill   func(matching.Result)
}

type Service struct {
	verifier Verifier
	matcher  Matcher
	recorder Recorder
	book     Book
	clock    util.Clock
	logger   *zap.SugaredLogger
	onFill   func(matching.Result)
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Verifier == nil || cfg.Matcher == nil || cfg.Recorder == nil || cfg.Book == nil {
		return nil, errors.New("exchange: verifier, matcher, recorder and book are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Service{
		verifier: cfg.Verifier,
		matcher:  cfg.Matcher,
		recorder: cfg.Recorder,
		book:     cfg.Book,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		onFill:   cfg.OnFill,
	}, nil
}

// Trade processes one raw submission and reports whether it was accepted.
//
// Malformed or unauthenticated submissions are recorded to the audit trail
// and never reach the matcher. A store failure during matching rejects the
// submission with nothing written.
func (s *Service) Trade(ctx context.Context, body []byte) bool {
	sub, err := order.ParseSubmission(body)
	if err != nil {
		s.logger.Infow("trade_rejected", "reason", "malformed", "err", err)
		s.recorder.Record(ctx, body)
		return false
	}

	p := sub.Payload
	if !s.verifier.Verify(p, sub.Sig) {
		s.logger.Infow("trade_rejected", "reason", "bad_signature",
			"platform", p.Platform, "sender_pk", p.SenderPK)
		s.recorder.Record(ctx, body)
		return false
	}

	res, err := s.matcher.Submit(ctx, order.NewOrder(p, sub.Sig, s.clock.Now()))
	if err != nil {
		s.logger.Errorw("trade_failed", "sender_pk", p.SenderPK, "err", err)
		return false
	}

	s.logger.Infow("trade_accepted",
		"order_id", res.Order.ID,
		"platform", p.Platform,
		"pair", p.SellCurrency+"/"+p.BuyCurrency,
		"matched", res.Matched())

	if res.Matched() && s.onFill != nil {
		s.onFill(res)
	}
	return true
}

// OrderBook lists every order, open or filled, in ID order
func (s *Service) OrderBook(ctx context.Context) ([]*order.Order, error) {
	return s.book.Orders(ctx)
}
