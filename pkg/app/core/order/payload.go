package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Field names of the inbound submission
const (
	FieldSig     = "sig"
	FieldPayload = "payload"

	FieldSenderPK     = "sender_pk"
	FieldReceiverPK   = "receiver_pk"
	FieldBuyCurrency  = "buy_currency"
	FieldSellCurrency = "sell_currency"
	FieldBuyAmount    = "buy_amount"
	FieldSellAmount   = "sell_amount"
	FieldPlatform     = "platform"
)

// RequiredPayloadFields lists every key a payload must carry, in check order.
var RequiredPayloadFields = []string{
	FieldSenderPK,
	FieldReceiverPK,
	FieldBuyCurrency,
	FieldSellCurrency,
	FieldBuyAmount,
	FieldSellAmount,
	FieldPlatform,
}

// ErrMalformed marks a submission rejected for its shape or values.
var ErrMalformed = errors.New("malformed submission")

// Payload is the signed part of a submission.
type Payload struct {
	SenderPK     string
	ReceiverPK   string
	BuyCurrency  string
	SellCurrency string
	BuyAmount    decimal.Decimal
	SellAmount   decimal.Decimal
	Platform     string

	// fields holds the payload object exactly as received (numbers as json.Number),
	// including keys beyond the required ones. nil for payloads built in code.
	fields map[string]any
}

// Submission is an inbound signed order request.
type Submission struct {
	Sig     string
	Payload *Payload
}

// Fields returns the payload as a JSON-ready object. For a parsed payload this is
// the object as received; otherwise it is built from the typed fields.
func (p *Payload) Fields() map[string]any {
	if p.fields != nil {
		return p.fields
	}
	return map[string]any{
		FieldSenderPK:     p.SenderPK,
		FieldReceiverPK:   p.ReceiverPK,
		FieldBuyCurrency:  p.BuyCurrency,
		FieldSellCurrency: p.SellCurrency,
		FieldBuyAmount:    json.Number(p.BuyAmount.String()),
		FieldSellAmount:   json.Number(p.SellAmount.String()),
		FieldPlatform:     p.Platform,
	}
}

// Canonical returns the exact bytes a client signs: the payload object as compact
// JSON with keys sorted and numbers written as submitted.
func (p *Payload) Canonical() ([]byte, error) {
	out, err := json.Marshal(p.Fields())
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return out, nil
}

// ParseSubmission decodes and validates a raw submission body.
// Every failure wraps ErrMalformed.
func ParseSubmission(body []byte) (*Submission, error) {
	top, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, field := range []string{FieldSig, FieldPayload} {
		if _, ok := top[field]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
		}
	}

	sig, ok := top[FieldSig].(string)
	if !ok || sig == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrMalformed, FieldSig)
	}

	fields, ok := top[FieldPayload].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an object", ErrMalformed, FieldPayload)
	}

	payload, err := parsePayload(fields)
	if err != nil {
		return nil, err
	}

	return &Submission{Sig: sig, Payload: payload}, nil
}

func parsePayload(fields map[string]any) (*Payload, error) {
	for _, field := range RequiredPayloadFields {
		if _, ok := fields[field]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, field)
		}
	}

	p := &Payload{fields: fields}
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{FieldSenderPK, &p.SenderPK},
		{FieldReceiverPK, &p.ReceiverPK},
		{FieldBuyCurrency, &p.BuyCurrency},
		{FieldSellCurrency, &p.SellCurrency},
		{FieldPlatform, &p.Platform},
	} {
		if *f.dst, err = stringField(fields, f.name); err != nil {
			return nil, err
		}
	}

	if p.BuyAmount, err = amountField(fields, FieldBuyAmount); err != nil {
		return nil, err
	}
	if p.SellAmount, err = amountField(fields, FieldSellAmount); err != nil {
		return nil, err
	}

	if p.BuyCurrency == p.SellCurrency {
		return nil, fmt.Errorf("%w: buy and sell currency are both %s", ErrMalformed, p.BuyCurrency)
	}

	return p, nil
}

func stringField(fields map[string]any, field string) (string, error) {
	s, ok := fields[field].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrMalformed, field)
	}
	return s, nil
}

// amountField accepts a JSON number or a numeric string and requires it to be positive.
func amountField(fields map[string]any, field string) (decimal.Decimal, error) {
	var raw string
	switch v := fields[field].(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = v
	default:
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", ErrMalformed, field)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive, got %s", ErrMalformed, field, raw)
	}
	return amount, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var top map[string]any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if top == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return top, nil
}

// MarshalJSON renders the submission in its wire form {"sig": ..., "payload": {...}}.
func (s *Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		FieldSig:     s.Sig,
		FieldPayload: s.Payload.Fields(),
	})
}
