package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	algocrypto "github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"golang.org/x/crypto/ed25519"
)

// AlgorandSigner wraps an Algorand account and signs arbitrary bytes the way
// wallets do for signBytes (domain-separated from transactions).
type AlgorandSigner struct {
	account algocrypto.Account
}

// GenerateAlgorandKey creates a new random Algorand account
func GenerateAlgorandKey() (*AlgorandSigner, error) {
	return &AlgorandSigner{account: algocrypto.GenerateAccount()}, nil
}

// AlgorandFromSeed derives the account from a 32-byte Ed25519 seed.
func AlgorandFromSeed(seed []byte) (*AlgorandSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	account, err := algocrypto.AccountFromPrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &AlgorandSigner{account: account}, nil
}

// Address returns the 58-character Algorand address
func (s *AlgorandSigner) Address() string {
	return s.account.Address.String()
}

// SeedHex returns the 32-byte seed as hex.
// WARNING: Keep this secret!
func (s *AlgorandSigner) SeedHex() string {
	return hex.EncodeToString(s.account.PrivateKey.Seed())
}

// SignBytes signs message with the SDK's bytes-signing scheme and returns
// the signature as base64.
func (s *AlgorandSigner) SignBytes(message []byte) (string, error) {
	sig, err := algocrypto.SignBytes(s.account.PrivateKey, message)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyAlgorandBytes reports whether sig (base64) is a bytes signature of
// message by the account at address. Malformed input of any kind yields false.
func VerifyAlgorandBytes(message []byte, sig string, address string) bool {
	pub, err := DecodeAlgorandAddress(address)
	if err != nil {
		return false
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}
	return algocrypto.VerifyBytes(pub, message, sigBytes)
}

// DecodeAlgorandAddress validates the address checksum and returns the public key
func DecodeAlgorandAddress(address string) (ed25519.PublicKey, error) {
	addr, err := types.DecodeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("invalid algorand address: %w", err)
	}
	return ed25519.PublicKey(addr[:]), nil
}
