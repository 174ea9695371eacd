// Package audit keeps the per-account audit trail fed by transfer-completed
// notifications. It is a downstream consumer; its failures never reach the engine.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/transfer-ledger/internal/model"
)

// Store persists audit rows.
type Store interface {
	CreateAuditLogs(ctx context.Context, logs []model.AuditLog) error
}

// Recorder turns one notification into a TRANSFER_OUT row for the source and a
// TRANSFER_IN row for the destination. It satisfies notify.Publisher.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

func (r *Recorder) Publish(ctx context.Context, evt model.TransferCompleted) error {
	return r.Record(ctx, evt)
}

// Record writes both audit rows stamped with the event's publish time.
func (r *Recorder) Record(ctx context.Context, evt model.TransferCompleted) error {
	at := evt.PublishedAt
	if at.IsZero() {
		at = r.now()
	}
	at = at.UTC()
	logs := []model.AuditLog{
		{AccountNumber: evt.FromAccount, Action: model.AuditTransferOut, Amount: evt.Amount, Timestamp: at},
		{AccountNumber: evt.ToAccount, Action: model.AuditTransferIn, Amount: evt.Amount, Timestamp: at},
	}
	if err := r.store.CreateAuditLogs(ctx, logs); err != nil {
		return fmt.Errorf("record audit for %s -> %s: %w", evt.FromAccount, evt.ToAccount, err)
	}
	return nil
}
