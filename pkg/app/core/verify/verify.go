// Package verify authenticates signed order payloads.
//
// A Registry maps a payload's platform to the PlatformVerifier that knows that
// platform's signing scheme. Verification is a pure predicate: it answers
// false for anything it cannot positively authenticate.
package verify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

// Platform names as they appear in payload.platform
const (
	PlatformEthereum = "Ethereum"
	PlatformAlgorand = "Algorand"
)

// PlatformVerifier checks sig over the canonical payload bytes for one platform.
// sender is the payload's sender_pk.
type PlatformVerifier interface {
	Verify(message []byte, sig string, sender string) bool
}

// PlatformVerifierFunc adapts a function to PlatformVerifier
type PlatformVerifierFunc func(message []byte, sig string, sender string) bool

func (f PlatformVerifierFunc) Verify(message []byte, sig string, sender string) bool {
	return f(message, sig, sender)
}

// Registry dispatches verification on payload.platform.
// Unknown platforms fail closed.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]PlatformVerifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]PlatformVerifier)}
}

// NewDefaultRegistry returns a registry with the built-in verifiers for the given
// platforms, or for every built-in platform when none are given.
func NewDefaultRegistry(platforms ...string) (*Registry, error) {
	builtin := map[string]PlatformVerifier{
		PlatformEthereum: EthereumVerifier{},
		PlatformAlgorand: AlgorandVerifier{},
	}
	if len(platforms) == 0 {
		platforms = []string{PlatformEthereum, PlatformAlgorand}
	}

	r := NewRegistry()
	for _, p := range platforms {
		v, ok := builtin[p]
		if !ok {
			return nil, fmt.Errorf("no built-in verifier for platform %q", p)
		}
		if err := r.Register(p, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a verifier for platform.
// Returns error if the platform is already registered.
func (r *Registry) Register(platform string, v PlatformVerifier) error {
	if platform == "" || v == nil {
		return fmt.Errorf("cannot register empty platform or nil verifier")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.verifiers[platform]; exists {
		return fmt.Errorf("platform %s already registered", platform)
	}
	r.verifiers[platform] = v
	return nil
}

// Platforms lists the registered platforms in sorted order
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.verifiers))
	for p := range r.verifiers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Verify reports whether sig authenticates p under p.Platform's scheme.
// It never panics; any failure, including an unknown platform, is false.
func (r *Registry) Verify(p *order.Payload, sig string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if p == nil {
		return false
	}

	r.mu.RLock()
	v, found := r.verifiers[p.Platform]
	r.mu.RUnlock()
	if !found {
		return false
	}

	message, err := p.Canonical()
	if err != nil {
		return false
	}
	return v.Verify(message, sig, p.SenderPK)
}
