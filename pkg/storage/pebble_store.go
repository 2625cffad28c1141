package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store closed")

// PebbleStore persists orders and logs in Pebble.
// Units of work are serialized by mu and written as one indexed batch.
type PebbleStore struct {
	mu     sync.Mutex
	db     *pebble.DB
	closed bool

	lastOrderID uint64
	lastLogID   uint64
}

// NewPebbleStore opens (or creates) the database at path on the OS filesystem.
func NewPebbleStore(path string) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
		BytesPerSync: 512 << 10,
	})
}

// NewPebbleStoreFS opens the database at path on fs. Tests pass vfs.NewMem().
func NewPebbleStoreFS(path string, fs vfs.FS) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{FS: fs})
}

func openPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}

	s := &PebbleStore{db: db}
	if s.lastOrderID, err = s.lastID(prefixOrder); err != nil {
		db.Close()
		return nil, err
	}
	if s.lastLogID, err = s.lastID(prefixLog); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// lastID recovers the highest ID written under prefix, so sequences survive restart.
func (s *PebbleStore) lastID(prefix string) (uint64, error) {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}
	id, err := idFromKey(prefix, iter.Key())
	if err != nil {
		return 0, fmt.Errorf("corrupt key: %w", err)
	}
	return id, nil
}

// Close closes the database
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Update runs fn inside a unit of work and commits its writes atomically.
// Nothing is written if fn or the commit fails.
func (s *PebbleStore) Update(ctx context.Context, fn func(tx order.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	tx := &pebbleTx{
		batch:       batch,
		lastOrderID: s.lastOrderID,
		lastLogID:   s.lastLogID,
	}
	if err := fn(tx); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	s.lastOrderID = tx.lastOrderID
	s.lastLogID = tx.lastLogID
	return nil
}

// Orders loads every order in ID order
func (s *PebbleStore) Orders(ctx context.Context) ([]*order.Order, error) {
	var orders []*order.Order
	err := s.scan(ctx, prefixOrder, func(v []byte) error {
		o, err := decodeOrder(v)
		if err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	})
	return orders, err
}

// Logs loads every audit log row in ID order
func (s *PebbleStore) Logs(ctx context.Context) ([]*order.Log, error) {
	var logs []*order.Log
	err := s.scan(ctx, prefixLog, func(v []byte) error {
		l, err := decodeLog(v)
		if err != nil {
			return err
		}
		logs = append(logs, l)
		return nil
	})
	return logs, err
}

func (s *PebbleStore) scan(ctx context.Context, prefix string, fn func(v []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	snap := s.db.NewSnapshot()
	s.mu.Unlock()
	defer snap.Close()

	p := []byte(prefix)
	iter, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// pebbleTx stages writes in an indexed batch; reads see the batch first.
type pebbleTx struct {
	batch       *pebble.Batch
	lastOrderID uint64
	lastLogID   uint64
}

func (tx *pebbleTx) InsertOrder(o *order.Order) error {
	if o.ID != 0 {
		return fmt.Errorf("insert order: already has id %d", o.ID)
	}
	o.ID = tx.lastOrderID + 1
	if err := tx.putOrder(o); err != nil {
		o.ID = 0
		return err
	}
	tx.lastOrderID = o.ID
	return nil
}

func (tx *pebbleTx) UpdateOrder(o *order.Order) error {
	if o.ID == 0 || o.ID > tx.lastOrderID {
		return fmt.Errorf("update order: unknown id %d", o.ID)
	}
	return tx.putOrder(o)
}

func (tx *pebbleTx) putOrder(o *order.Order) error {
	data, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if err := tx.batch.Set(orderKey(o.ID), data, nil); err != nil {
		return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
	}
	return nil
}

func (tx *pebbleTx) InsertLog(l *order.Log) error {
	if l.ID != 0 {
		return fmt.Errorf("insert log: already has id %d", l.ID)
	}
	l.ID = tx.lastLogID + 1
	data, err := encodeLog(l)
	if err != nil {
		l.ID = 0
		return err
	}
	if err := tx.batch.Set(logKey(l.ID), data, nil); err != nil {
		l.ID = 0
		return fmt.Errorf("failed to stage log: %w", err)
	}
	tx.lastLogID = l.ID
	return nil
}

func (tx *pebbleTx) FindFirstOrder(match func(*order.Order) bool) (*order.Order, error) {
	p := []byte(prefixOrder)
	iter, err := tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			return nil, err
		}
		if match(o) {
			return o, nil
		}
	}
	return nil, iter.Error()
}

var _ order.Store = (*PebbleStore)(nil)
