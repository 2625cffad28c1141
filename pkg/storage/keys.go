package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key schema:
//
//   ord:<id>  → Order (JSON)
//   log:<id>  → Log (JSON)
//
// IDs are zero-padded to 20 digits so lexicographic key order equals
// insertion order, which is what FindFirstOrder relies on for FIFO.
const (
	prefixOrder = "ord:"
	prefixLog   = "log:"
)

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func logKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixLog, id))
}

// idFromKey parses the numeric suffix of a prefixed key
func idFromKey(prefix string, key []byte) (uint64, error) {
	s := string(key)
	if !strings.HasPrefix(s, prefix) {
		return 0, fmt.Errorf("key %q lacks prefix %q", s, prefix)
	}
	return strconv.ParseUint(strings.TrimPrefix(s, prefix), 10, 64)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
