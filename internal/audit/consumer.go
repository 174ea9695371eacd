package audit

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v4"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer records every Kafka notification and commits its offset only after
// the audit rows were written, so redelivery may duplicate but never skip.
type Consumer struct {
	reader   MessageReader
	recorder *Recorder
	log      *zap.SugaredLogger
	backoff  func() backoff.BackOff
}

func NewConsumer(reader MessageReader, recorder *Recorder, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		reader:   reader,
		recorder: recorder,
		log:      logger,
		backoff: func() backoff.BackOff {
			eb := backoff.NewExponentialBackOff()
			eb.MaxElapsedTime = 0
			return eb
		},
	}
}

// NewKafkaReader builds the reader used by cmd/auditor.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// Run consumes until ctx is done or a message cannot be recorded. Fetching past
// an unrecorded message would let a later commit skip it, so Run stops instead
// and the uncommitted offset is redelivered to the next consumer.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.ConsumeOne(ctx); err != nil {
			return err
		}
	}
}

// ConsumeOne fetches, records and commits a single message.
func (c *Consumer) ConsumeOne(ctx context.Context) error {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}
	var evt model.TransferCompleted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		c.log.Errorw("skipping malformed notification", "offset", msg.Offset, "error", err)
		return c.reader.CommitMessages(ctx, msg)
	}
	if evt.PublishedAt.IsZero() {
		evt.PublishedAt = msg.Time
	}
	err = backoff.Retry(func() error {
		return c.recorder.Record(ctx, evt)
	}, backoff.WithContext(c.backoff(), ctx))
	if err != nil {
		return err
	}
	return c.reader.CommitMessages(ctx, msg)
}
