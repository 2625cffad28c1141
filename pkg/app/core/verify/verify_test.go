package verify

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/crypto"
)

func testPayload(platform, sender string) *order.Payload {
	return &order.Payload{
		SenderPK:     sender,
		ReceiverPK:   "receiver",
		BuyCurrency:  "Algorand",
		SellCurrency: "Ethereum",
		BuyAmount:    decimal.NewFromInt(10),
		SellAmount:   decimal.RequireFromString("2.5"),
		Platform:     platform,
	}
}

func signEthereum(t *testing.T, s *crypto.Signer, p *order.Payload) string {
	t.Helper()
	msg, err := p.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	sig, err := s.SignText(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "0x" + hex.EncodeToString(sig)
}

func signAlgorand(t *testing.T, s *crypto.AlgorandSigner, p *order.Payload) string {
	t.Helper()
	msg, err := p.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	sig, err := s.SignBytes(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestVerifyEthereum(t *testing.T) {
	r := newRegistry(t)
	signer, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()

	p := testPayload(PlatformEthereum, signer.Address().Hex())
	sig := signEthereum(t, signer, p)

	if !r.Verify(p, sig) {
		t.Fatal("valid signature rejected")
	}

	lower := testPayload(PlatformEthereum, strings.ToLower(signer.Address().Hex()))
	if !r.Verify(lower, signEthereum(t, signer, lower)) {
		t.Error("lowercase sender address rejected")
	}

	// V in {0, 1}
	raw, _ := crypto.DecodeSignature(sig)
	raw[64] -= 27
	if !r.Verify(p, hex.EncodeToString(raw)) {
		t.Error("signature with V in {0,1} rejected")
	}

	tampered := testPayload(PlatformEthereum, signer.Address().Hex())
	tampered.BuyAmount = decimal.NewFromInt(11)

	tests := []struct {
		name string
		p    *order.Payload
		sig  string
	}{
		{"other signer", p, signEthereum(t, other, p)},
		{"tampered payload", tampered, sig},
		{"not hex", p, "0xzz"},
		{"short", p, sig[:20]},
		{"empty", p, ""},
		{"sender not an address", testPayload(PlatformEthereum, "alice"), sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r.Verify(tt.p, tt.sig) {
				t.Error("expected rejection")
			}
		})
	}
}

func TestVerifyAlgorand(t *testing.T) {
	r := newRegistry(t)
	signer, _ := crypto.GenerateAlgorandKey()
	other, _ := crypto.GenerateAlgorandKey()

	p := testPayload(PlatformAlgorand, signer.Address())
	sig := signAlgorand(t, signer, p)

	if !r.Verify(p, sig) {
		t.Fatal("valid signature rejected")
	}

	tampered := testPayload(PlatformAlgorand, signer.Address())
	tampered.ReceiverPK = "mallory"

	tests := []struct {
		name string
		p    *order.Payload
		sig  string
	}{
		{"other signer", p, signAlgorand(t, other, p)},
		{"tampered payload", tampered, sig},
		{"not base64", p, "!!!"},
		{"wrong length", p, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"sender not an address", testPayload(PlatformAlgorand, "alice"), sig},
		{"sender of other key", testPayload(PlatformAlgorand, other.Address()), sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r.Verify(tt.p, tt.sig) {
				t.Error("expected rejection")
			}
		})
	}
}

func TestVerifyUnknownPlatformFailsClosed(t *testing.T) {
	r := newRegistry(t)
	signer, _ := crypto.GenerateKey()

	for _, platform := range []string{"Bitcoin", "ethereum", ""} {
		p := testPayload(platform, signer.Address().Hex())
		if r.Verify(p, signEthereum(t, signer, p)) {
			t.Errorf("platform %q verified", platform)
		}
	}
}

func TestVerifyCrossPlatformSignatureRejected(t *testing.T) {
	r := newRegistry(t)
	eth, _ := crypto.GenerateKey()

	// Ethereum-signed payload claiming the Algorand platform
	p := testPayload(PlatformAlgorand, eth.Address().Hex())
	if r.Verify(p, signEthereum(t, eth, p)) {
		t.Error("ethereum signature accepted under Algorand")
	}
}

func TestVerifyRecoversFromPanickingVerifier(t *testing.T) {
	r := NewRegistry()
	r.Register("Boom", PlatformVerifierFunc(func([]byte, string, string) bool {
		panic("boom")
	}))

	if r.Verify(testPayload("Boom", "x"), "sig") {
		t.Error("panicking verifier should fail closed")
	}
	if r.Verify(nil, "sig") {
		t.Error("nil payload should fail closed")
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	accept := PlatformVerifierFunc(func([]byte, string, string) bool { return true })

	if err := r.Register("Test", accept); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("Test", accept); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := r.Register("", accept); err == nil {
		t.Error("expected error for empty platform")
	}
	if !r.Verify(testPayload("Test", "x"), "anything") {
		t.Error("registered verifier not used")
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(PlatformAlgorand)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := r.Platforms(); len(got) != 1 || got[0] != PlatformAlgorand {
		t.Errorf("platforms = %v", got)
	}

	if _, err := NewDefaultRegistry("Dogecoin"); err == nil {
		t.Error("expected error for unknown built-in platform")
	}

	all := newRegistry(t).Platforms()
	if len(all) != 2 || all[0] != PlatformAlgorand || all[1] != PlatformEthereum {
		t.Errorf("default platforms = %v", all)
	}
}

func TestSignPayloadVerifies(t *testing.T) {
	r := newRegistry(t)
	eth, _ := crypto.GenerateKey()
	algo, _ := crypto.GenerateAlgorandKey()

	for _, signer := range []Signer{NewEthereumSigner(eth), NewAlgorandSigner(algo)} {
		t.Run(signer.Platform(), func(t *testing.T) {
			p := testPayload(signer.Platform(), signer.Address())
			sub, err := SignPayload(p, signer)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}

			// through the wire form and back
			body, err := sub.MarshalJSON()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			parsed, err := order.ParseSubmission(body)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !r.Verify(parsed.Payload, parsed.Sig) {
				t.Error("signed submission did not verify")
			}
		})
	}

	if _, err := SignPayload(testPayload(PlatformAlgorand, "someone"), NewAlgorandSigner(algo)); err == nil {
		t.Error("expected error signing a payload for another sender")
	}
}
