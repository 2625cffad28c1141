package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/app/core/audit"
	"github.com/uhyunpark/swapbook/pkg/app/core/matching"
	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/app/core/verify"
	"github.com/uhyunpark/swapbook/pkg/crypto"
	"github.com/uhyunpark/swapbook/pkg/storage"
	"github.com/uhyunpark/swapbook/pkg/util"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	store *storage.MemoryStore
	fills []matching.Result
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: storage.NewMemoryStore()}

	clock := util.NewManualClock(t0)
	logger := zap.NewNop().Sugar()
	registry, err := verify.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	h.svc, err = NewService(Config{
		Verifier: registry,
		Matcher:  matching.NewEngine(h.store, clock, logger),
		Recorder: audit.NewLog(h.store, clock, logger),
		Book:     h.store,
		Clock:    clock,
		Logger:   logger,
		OnFill:   func(r matching.Result) { h.fills = append(h.fills, r) },
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return h
}

func signedBody(t *testing.T, signer verify.Signer, buyCur, sellCur, buy, sell string) []byte {
	t.Helper()
	p := &order.Payload{
		SenderPK:     signer.Address(),
		ReceiverPK:   "receiver-" + signer.Platform(),
		BuyCurrency:  buyCur,
		SellCurrency: sellCur,
		BuyAmount:    decimal.RequireFromString(buy),
		SellAmount:   decimal.RequireFromString(sell),
		Platform:     signer.Platform(),
	}
	sub, err := verify.SignPayload(p, signer)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func (h *harness) counts(t *testing.T) (orders, logs int) {
	t.Helper()
	o, err := h.store.Orders(context.Background())
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	l, err := h.store.Logs(context.Background())
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	return len(o), len(l)
}

func TestTradeAcrossPlatformsMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ethKey, _ := crypto.GenerateKey()
	algoKey, _ := crypto.GenerateAlgorandKey()
	eth := verify.NewEthereumSigner(ethKey)
	algo := verify.NewAlgorandSigner(algoKey)

	// ethereum user sells 1 ETH for 10 ALGO; algorand user takes it
	if !h.svc.Trade(ctx, signedBody(t, eth, "Algorand", "Ethereum", "10", "1")) {
		t.Fatal("ethereum order rejected")
	}
	if !h.svc.Trade(ctx, signedBody(t, algo, "Ethereum", "Algorand", "1", "10")) {
		t.Fatal("algorand order rejected")
	}

	book, err := h.svc.OrderBook(ctx)
	if err != nil {
		t.Fatalf("order book: %v", err)
	}
	if len(book) != 2 {
		t.Fatalf("got %d orders, want 2", len(book))
	}
	if book[0].IsOpen() || book[1].IsOpen() {
		t.Error("orders should be filled")
	}
	if book[0].SenderPK != eth.Address() || book[1].SenderPK != algo.Address() {
		t.Errorf("senders = %s, %s", book[0].SenderPK, book[1].SenderPK)
	}
	if book[1].Signature == "" || !book[1].CreatedAt.Equal(t0) {
		t.Errorf("signature or timestamp not persisted: %+v", book[1])
	}

	if len(h.fills) != 1 || len(h.fills[0].Filled) != 2 {
		t.Errorf("fill hook calls = %+v", h.fills)
	}
	if _, logs := h.counts(t); logs != 0 {
		t.Errorf("accepted trades wrote %d audit logs", logs)
	}
}

func TestTradeRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	key, _ := crypto.GenerateKey()
	body := signedBody(t, verify.NewEthereumSigner(key), "Algorand", "Ethereum", "10", "1")

	// tamper with the amount after signing
	tampered := strings.Replace(string(body), `"buy_amount":10`, `"buy_amount":100`, 1)
	if tampered == string(body) {
		t.Fatal("tamper did not apply")
	}

	if h.svc.Trade(ctx, []byte(tampered)) {
		t.Fatal("tampered order accepted")
	}

	orders, logs := h.counts(t)
	if orders != 0 || logs != 1 {
		t.Errorf("orders=%d logs=%d, want 0 and 1", orders, logs)
	}
}

func TestTradeRejectsUnknownPlatform(t *testing.T) {
	h := newHarness(t)
	body := `{"sig":"x","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"BTC",` +
		`"sell_currency":"ETH","buy_amount":1,"sell_amount":2,"platform":"Bitcoin"}}`

	if h.svc.Trade(context.Background(), []byte(body)) {
		t.Fatal("unknown platform accepted")
	}
	if orders, logs := h.counts(t); orders != 0 || logs != 1 {
		t.Errorf("orders=%d logs=%d", orders, logs)
	}
}

// stubs that count calls

type countingVerifier struct{ calls int }

func (v *countingVerifier) Verify(*order.Payload, string) bool { v.calls++; return true }

type countingMatcher struct {
	calls int
	err   error
}

func (m *countingMatcher) Submit(_ context.Context, o *order.Order) (matching.Result, error) {
	m.calls++
	if m.err != nil {
		return matching.Result{}, m.err
	}
	cp := o.Clone()
	cp.ID = uint64(m.calls)
	return matching.Result{Accepted: true, Order: cp}, nil
}

type recorded struct{ raws []any }

func (r *recorded) Record(_ context.Context, raw any) { r.raws = append(r.raws, raw) }

func TestMalformedNeverReachesMatching(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`[]`,
		`{"payload":{}}`,
		`{"sig":"s"}`,
		`{"sig":"s","payload":{"sender_pk":"a"}}`,
		`{"sig":"s","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"X","sell_currency":"Y",` +
			`"buy_amount":0,"sell_amount":1,"platform":"Ethereum"}}`,
		`{"sig":"s","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"X","sell_currency":"X",` +
			`"buy_amount":1,"sell_amount":1,"platform":"Ethereum"}}`,
		`{"sig":"s","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"X","sell_currency":"Y",` +
			`"sell_amount":1,"platform":"Ethereum"}}`,
	}

	for _, body := range bodies {
		v := &countingVerifier{}
		m := &countingMatcher{}
		rec := &recorded{}
		svc, err := NewService(Config{Verifier: v, Matcher: m, Recorder: rec, Book: storage.NewMemoryStore()})
		if err != nil {
			t.Fatalf("service: %v", err)
		}

		if svc.Trade(context.Background(), []byte(body)) {
			t.Errorf("malformed body accepted: %q", body)
		}
		if v.calls != 0 || m.calls != 0 {
			t.Errorf("body %q reached verifier=%d matcher=%d", body, v.calls, m.calls)
		}
		if len(rec.raws) != 1 || string(rec.raws[0].([]byte)) != body {
			t.Errorf("body %q not recorded verbatim: %v", body, rec.raws)
		}
	}
}

func TestTradeMissingBuyAmountLeavesBookEmpty(t *testing.T) {
	h := newHarness(t)

	key, _ := crypto.GenerateKey()
	body := string(signedBody(t, verify.NewEthereumSigner(key), "Algorand", "Ethereum", "10", "1"))
	stripped := strings.Replace(body, `"buy_amount":10,`, "", 1)
	if stripped == body {
		t.Fatal("buy_amount not found in signed body")
	}

	if h.svc.Trade(context.Background(), []byte(stripped)) {
		t.Fatal("order without buy_amount accepted")
	}
	orders, logs := h.counts(t)
	if orders != 0 || logs != 1 {
		t.Errorf("orders=%d logs=%d, want 0 and 1", orders, logs)
	}
}

func TestTradeMatcherFailure(t *testing.T) {
	rec := &recorded{}
	m := &countingMatcher{err: errors.New("store down")}
	fills := 0
	svc, _ := NewService(Config{
		Verifier: &countingVerifier{},
		Matcher:  m,
		Recorder: rec,
		Book:     storage.NewMemoryStore(),
		OnFill:   func(matching.Result) { fills++ },
	})

	body := `{"sig":"s","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"X","sell_currency":"Y",` +
		`"buy_amount":1,"sell_amount":1,"platform":"Ethereum"}}`
	if svc.Trade(context.Background(), []byte(body)) {
		t.Fatal("trade accepted despite matcher failure")
	}
	if m.calls != 1 || fills != 0 || len(rec.raws) != 0 {
		t.Errorf("matcher=%d fills=%d audit=%d", m.calls, fills, len(rec.raws))
	}
}

func TestTradeRestingOrderSkipsFillHook(t *testing.T) {
	fills := 0
	svc, _ := NewService(Config{
		Verifier: &countingVerifier{},
		Matcher:  &countingMatcher{},
		Recorder: &recorded{},
		Book:     storage.NewMemoryStore(),
		OnFill:   func(matching.Result) { fills++ },
	})

	body := `{"sig":"s","payload":{"sender_pk":"a","receiver_pk":"b","buy_currency":"X","sell_currency":"Y",` +
		`"buy_amount":1,"sell_amount":1,"platform":"Ethereum"}}`
	if !svc.Trade(context.Background(), []byte(body)) {
		t.Fatal("trade rejected")
	}
	if fills != 0 {
		t.Error("fill hook ran without a match")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}
