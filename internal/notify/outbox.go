package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/transfer-ledger/internal/metrics"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxStore is the slice of the repository the outbox needs.
type OutboxStore interface {
	DB(ctx context.Context) *gorm.DB
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
}

// OutboxNotifier persists each notification as an event_outbox row in its own
// write, after the transfer committed. A Relay publishes the rows later.
type OutboxNotifier struct {
	store OutboxStore
	log   *zap.SugaredLogger
}

func NewOutboxNotifier(store OutboxStore, logger *zap.SugaredLogger) *OutboxNotifier {
	return &OutboxNotifier{store: store, log: logger}
}

func (n *OutboxNotifier) Notify(ctx context.Context, evt model.TransferCompleted) {
	ctx = context.WithoutCancel(ctx)
	payload, err := encode(evt)
	if err != nil {
		n.log.Errorw("encode notification", "error", err)
		return
	}
	row := &model.OutboxEvent{
		Aggregate:    "Account",
		AggregateKey: evt.FromAccount,
		EventType:    model.EventTransferCompleted,
		Payload:      string(payload),
	}
	if err := n.store.CreateOutboxEvent(ctx, n.store.DB(ctx), row); err != nil {
		metrics.NotificationsTotal.WithLabelValues("outbox", "error").Inc()
		n.log.Errorw("write outbox event", "from", evt.FromAccount, "to", evt.ToAccount, "amount", evt.Amount.String(), "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("outbox", "ok").Inc()
}

// Relay moves outbox rows to a Publisher. A row is marked processed only after a
// successful publish, so a crash in between yields a duplicate, never a loss.
type Relay struct {
	store     OutboxStore
	pub       Publisher
	sink      string
	batchSize int
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewRelay(store OutboxStore, pub Publisher, sink string, batchSize int, logger *zap.SugaredLogger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{store: store, pub: pub, sink: sink, batchSize: batchSize, log: logger, now: time.Now}
}

// RunOnce relays one batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.PollOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("poll outbox: %w", err)
	}
	sent := 0
	for _, row := range events {
		evt, err := decode([]byte(row.Payload))
		if err != nil {
			// an undecodable row would block the queue forever
			r.log.Errorw("discarding malformed outbox event", "id", row.ID, "error", err)
			if err := r.store.MarkOutboxProcessed(ctx, row.ID); err != nil {
				r.log.Errorw("mark processed", "id", row.ID, "error", err)
			}
			continue
		}
		evt.PublishedAt = r.now().UTC()
		if err := r.pub.Publish(ctx, evt); err != nil {
			metrics.NotificationsTotal.WithLabelValues(r.sink, "error").Inc()
			r.log.Errorw("publish outbox event", "id", row.ID, "error", err)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(r.sink, "ok").Inc()
		if err := r.store.MarkOutboxProcessed(ctx, row.ID); err != nil {
			r.log.Errorw("mark processed", "id", row.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Run relays every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Errorf("relay: %v", err)
				continue
			}
			if n > 0 {
				r.log.Debugf("relayed %d events", n)
			}
		}
	}
}
