package storage

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

func encodeOrder(o *order.Order) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
	}
	return data, nil
}

func decodeOrder(data []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

func encodeLog(l *order.Log) ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log %d: %w", l.ID, err)
	}
	return data, nil
}

func decodeLog(data []byte) (*order.Log, error) {
	var l order.Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log: %w", err)
	}
	return &l, nil
}
