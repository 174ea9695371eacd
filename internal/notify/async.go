package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/richardliu001/transfer-ledger/internal/metrics"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"go.uber.org/zap"
)

// AsyncOptions sizes the in-process delivery queue.
type AsyncOptions struct {
	Sink            string
	Workers         int
	Buffer          int
	MaxRetries      uint64
	InitialInterval time.Duration

	// EnqueueTimeout bounds how long Notify waits for queue space.
	EnqueueTimeout time.Duration
}

// AsyncNotifier hands events to a fixed pool of workers that deliver them to a
// Publisher, retrying with exponential backoff. Events still queued when the
// process dies are lost; use OutboxNotifier when that matters.
type AsyncNotifier struct {
	pub   Publisher
	log   *zap.SugaredLogger
	opts  AsyncOptions
	queue chan model.TransferCompleted
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier starts opts.Workers delivery goroutines.
func NewAsyncNotifier(pub Publisher, logger *zap.SugaredLogger, opts AsyncOptions) *AsyncNotifier {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 5 * time.Second
	}
	n := &AsyncNotifier{
		pub:   pub,
		log:   logger,
		opts:  opts,
		queue: make(chan model.TransferCompleted, opts.Buffer),
		now:   time.Now,
	}
	for i := 0; i < opts.Workers; i++ {
		n.wg.Add(1)
		go n.work()
	}
	return n
}

// Notify enqueues evt, waiting at most EnqueueTimeout for queue space. The
// transfer already committed, so a caller that went away does not cancel it.
func (n *AsyncNotifier) Notify(ctx context.Context, evt model.TransferCompleted) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.opts.EnqueueTimeout)
	defer cancel()

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop(evt, "notifier closed")
		return
	}
	select {
	case n.queue <- evt:
	case <-ctx.Done():
		n.drop(evt, "queue full")
	}
}

// Close stops accepting events and waits until queued ones were delivered or given up.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *AsyncNotifier) work() {
	defer n.wg.Done()
	for evt := range n.queue {
		n.deliver(evt)
	}
}

func (n *AsyncNotifier) deliver(evt model.TransferCompleted) {
	ctx := context.Background()
	evt.PublishedAt = n.now().UTC()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.opts.InitialInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(eb, n.opts.MaxRetries)

	err := backoff.RetryNotify(func() error {
		return n.pub.Publish(ctx, evt)
	}, b, func(err error, wait time.Duration) {
		n.log.Warnw("notification delivery failed, retrying", "from", evt.FromAccount, "to", evt.ToAccount, "wait", wait, "error", err)
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(n.opts.Sink, "error").Inc()
		n.log.Errorw("notification dropped after retries", "from", evt.FromAccount, "to", evt.ToAccount, "amount", evt.Amount.String(), "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(n.opts.Sink, "ok").Inc()
}

func (n *AsyncNotifier) drop(evt model.TransferCompleted, reason string) {
	metrics.NotificationsTotal.WithLabelValues(n.opts.Sink, "dropped").Inc()
	n.log.Errorw("notification dropped", "from", evt.FromAccount, "to", evt.ToAccount, "amount", evt.Amount.String(), "reason", reason)
}
