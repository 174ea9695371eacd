package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/transfer-ledger/internal/model"
)

// RedisStreamPublisher appends events to a Redis stream under the "payload" field.
type RedisStreamPublisher struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(rdb redis.Cmdable, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, evt model.TransferCompleted) error {
	value, err := encode(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.rdb.XAdd(ctx, p.args(value)).Err()
}

func (p *RedisStreamPublisher) args(value []byte) *redis.XAddArgs {
	a := &redis.XAddArgs{
		Stream: p.stream,
		Values: []interface{}{"payload", string(value)},
	}
	if p.maxLen > 0 {
		a.MaxLen = p.maxLen
		a.Approx = true
	}
	return a
}
