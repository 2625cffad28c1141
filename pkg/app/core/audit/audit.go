// Package audit keeps a best-effort, append-only record of rejected submissions.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/app/core/order"
	"github.com/uhyunpark/swapbook/pkg/util"
)

// Log appends Log rows to the order store. Recording never fails the caller:
// storage or serialization errors are logged and dropped.
type Log struct {
	store  order.Store
	clock  util.Clock
	logger *zap.SugaredLogger
}

func NewLog(store order.Store, clock util.Clock, logger *zap.SugaredLogger) *Log {
	return &Log{store: store, clock: clock, logger: logger}
}

// Record stores a deterministic serialization of raw in its own unit of work.
func (l *Log) Record(ctx context.Context, raw any) {
	message, err := Serialize(raw)
	if err != nil {
		l.logger.Warnw("audit_serialize_failed", "err", err)
		return
	}

	entry := &order.Log{Message: message, CreatedAt: l.clock.Now()}
	err = l.store.Update(ctx, func(tx order.Tx) error {
		return tx.InsertLog(entry)
	})
	if err != nil {
		l.logger.Errorw("audit_record_failed", "err", err, "bytes", len(message))
		return
	}
	l.logger.Debugw("audit_recorded", "log_id", entry.ID)
}

// Serialize renders raw for the audit trail.
//
// Byte input that holds valid JSON is compacted, so equal documents produce
// equal rows. Other byte input is kept as a JSON string. Everything else goes
// through encoding/json, whose map key ordering is sorted.
func Serialize(raw any) (string, error) {
	switch v := raw.(type) {
	case []byte:
		return serializeBytes(v)
	case json.RawMessage:
		return serializeBytes(v)
	case string:
		return serializeBytes([]byte(v))
	}

	out, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %T: %w", raw, err)
	}
	return string(out), nil
}

func serializeBytes(b []byte) (string, error) {
	var buf bytes.Buffer
	if json.Valid(b) {
		if err := json.Compact(&buf, b); err == nil {
			return buf.String(), nil
		}
	}
	out, err := json.Marshal(string(b))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
