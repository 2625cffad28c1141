package verify

import (
	"encoding/hex"
	"fmt"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/crypto"
)

// Signer produces signatures that the matching PlatformVerifier accepts.
// Used by clients and tools; the server only verifies.
type Signer interface {
	Platform() string
	Address() string
	Sign(message []byte) (string, error)
}

type ethereumSigner struct{ key *crypto.Signer }

func NewEthereumSigner(key *crypto.Signer) Signer { return ethereumSigner{key: key} }

func (s ethereumSigner) Platform() string { return PlatformEthereum }
func (s ethereumSigner) Address() string  { return s.key.Address().Hex() }

func (s ethereumSigner) Sign(message []byte) (string, error) {
	sig, err := s.key.SignText(message)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

type algorandSigner struct{ key *crypto.AlgorandSigner }

func NewAlgorandSigner(key *crypto.AlgorandSigner) Signer { return algorandSigner{key: key} }

func (s algorandSigner) Platform() string { return PlatformAlgorand }
func (s algorandSigner) Address() string  { return s.key.Address() }

func (s algorandSigner) Sign(message []byte) (string, error) {
	return s.key.SignBytes(message)
}

// SignPayload signs the canonical form of p. p.Platform and p.SenderPK must
// name signer, or the result will not verify.
func SignPayload(p *order.Payload, signer Signer) (*order.Submission, error) {
	if p.Platform != signer.Platform() || p.SenderPK != signer.Address() {
		return nil, fmt.Errorf("payload is for %s/%s, signer is %s/%s",
			p.Platform, p.SenderPK, signer.Platform(), signer.Address())
	}
	message, err := p.Canonical()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return &order.Submission{Sig: sig, Payload: p}, nil
}
