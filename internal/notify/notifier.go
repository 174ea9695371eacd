// Package notify carries transfer-completed facts from the engine to downstream
// collaborators such as the audit trail. Delivery is asynchronous and at-least-once;
// nothing in this package can undo or delay a committed transfer.
package notify

import (
	"context"
	"encoding/json"

	"github.com/richardliu001/transfer-ledger/internal/model"
)

// Notifier is called by the engine strictly after a transfer committed.
// Implementations must not block on downstream delivery and never return errors
// to the engine.
type Notifier interface {
	Notify(ctx context.Context, evt model.TransferCompleted)
}

// Publisher delivers one event to a sink. An error means the event may be retried.
type Publisher interface {
	Publish(ctx context.Context, evt model.TransferCompleted) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, model.TransferCompleted) {}

func encode(evt model.TransferCompleted) ([]byte, error) {
	return json.Marshal(evt)
}

func decode(payload []byte) (model.TransferCompleted, error) {
	var evt model.TransferCompleted
	err := json.Unmarshal(payload, &evt)
	return evt, err
}
