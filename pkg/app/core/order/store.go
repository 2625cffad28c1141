package order

import "context"

// Store is the durable home of all Order and Log rows.
//
// Update runs fn as one unit of work: every write made through tx commits
// together or not at all, and units of work are serialized, so a read made
// through tx cannot be invalidated by a concurrent Update before commit.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Orders returns every order, filled or not, in insertion order.
	Orders(ctx context.Context) ([]*Order, error)
	// Logs returns every audit log row in insertion order.
	Logs(ctx context.Context) ([]*Log, error)

	Close() error
}

// Tx is the view of the store inside a unit of work.
// Reads observe the writes already made through the same Tx.
type Tx interface {
	// InsertOrder assigns o the next order ID and stages it.
	InsertOrder(o *Order) error
	// UpdateOrder overwrites an existing order.
	UpdateOrder(o *Order) error
	// InsertLog assigns l the next log ID and stages it.
	InsertLog(l *Log) error
	// FindFirstOrder returns the first order in insertion order for which
	// match returns true, or nil if there is none.
	FindFirstOrder(match func(*Order) bool) (*Order, error)
}
