package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

// MemoryStore keeps orders and logs in process memory. It has the same
// unit-of-work semantics as PebbleStore and backs tests and STORE=memory.
type MemoryStore struct {
	mu     sync.Mutex
	orders []*order.Order // index i holds ID i+1
	logs   []*order.Log
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx order.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{
		store:   s,
		updated: make(map[uint64]*order.Order),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// commit
	for id, o := range tx.updated {
		s.orders[id-1] = o
	}
	s.orders = append(s.orders, tx.inserted...)
	s.logs = append(s.logs, tx.logs...)
	return nil
}

func (s *MemoryStore) Orders(ctx context.Context) ([]*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*order.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Logs(ctx context.Context) ([]*order.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*order.Log, len(s.logs))
	for i, l := range s.logs {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

// memoryTx stages copies; the store's rows are only replaced on commit.
type memoryTx struct {
	store    *MemoryStore
	updated  map[uint64]*order.Order // committed IDs rewritten in this tx
	inserted []*order.Order
	logs     []*order.Log
}

func (tx *memoryTx) committedLen() uint64 {
	return uint64(len(tx.store.orders))
}

func (tx *memoryTx) InsertOrder(o *order.Order) error {
	if o.ID != 0 {
		return fmt.Errorf("insert order: already has id %d", o.ID)
	}
	o.ID = tx.committedLen() + uint64(len(tx.inserted)) + 1
	tx.inserted = append(tx.inserted, o.Clone())
	return nil
}

func (tx *memoryTx) UpdateOrder(o *order.Order) error {
	switch {
	case o.ID == 0:
		return fmt.Errorf("update order: unknown id %d", o.ID)
	case o.ID <= tx.committedLen():
		tx.updated[o.ID] = o.Clone()
	case o.ID <= tx.committedLen()+uint64(len(tx.inserted)):
		tx.inserted[o.ID-tx.committedLen()-1] = o.Clone()
	default:
		return fmt.Errorf("update order: unknown id %d", o.ID)
	}
	return nil
}

func (tx *memoryTx) InsertLog(l *order.Log) error {
	if l.ID != 0 {
		return fmt.Errorf("insert log: already has id %d", l.ID)
	}
	l.ID = uint64(len(tx.store.logs)+len(tx.logs)) + 1
	cp := *l
	tx.logs = append(tx.logs, &cp)
	return nil
}

func (tx *memoryTx) FindFirstOrder(match func(*order.Order) bool) (*order.Order, error) {
	for _, committed := range tx.store.orders {
		o := committed
		if staged, ok := tx.updated[o.ID]; ok {
			o = staged
		}
		if cp := o.Clone(); match(cp) {
			return cp, nil
		}
	}
	for _, o := range tx.inserted {
		if cp := o.Clone(); match(cp) {
			return cp, nil
		}
	}
	return nil, nil
}

var _ order.Store = (*MemoryStore)(nil)
