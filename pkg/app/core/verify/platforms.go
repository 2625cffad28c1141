package verify

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/swapbook/pkg/crypto"
)

// EthereumVerifier checks a hex personal-message signature against a 0x address.
type EthereumVerifier struct{}

func (EthereumVerifier) Verify(message []byte, sig string, sender string) bool {
	if !common.IsHexAddress(sender) {
		return false
	}
	sigBytes, err := crypto.DecodeSignature(sig)
	if err != nil {
		return false
	}
	// common.Address compares bytes, so checksum casing in sender does not matter
	return crypto.VerifyText(common.HexToAddress(sender), message, sigBytes)
}

// AlgorandVerifier checks a base64 Ed25519 signature over "MX" || message
// against a 58-character Algorand address.
type AlgorandVerifier struct{}

func (AlgorandVerifier) Verify(message []byte, sig string, sender string) bool {
	return crypto.VerifyAlgorandBytes(message, sig, sender)
}
