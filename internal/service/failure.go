package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fallbackErrorMessage = "Transfer failed"

// FailureRecorder persists FAILED for a key in a unit of its own, after the failed
// attempt's unit has rolled back. A terminal status is never overwritten.
type FailureRecorder struct {
	repo            repo.RepositoryInterface
	log             *zap.SugaredLogger
	retries         uint64
	initialInterval time.Duration
	now             func() time.Time
}

func NewFailureRecorder(r repo.RepositoryInterface, logger *zap.SugaredLogger, retries uint64) *FailureRecorder {
	return &FailureRecorder{
		repo:            r,
		log:             logger,
		retries:         retries,
		initialInterval: 20 * time.Millisecond,
		now:             model.Now,
	}
}

// RecordFailure retries on lock contention and on losing an insert race for the key.
func (f *FailureRecorder) RecordFailure(ctx context.Context, key, message string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	msg := sanitizeErrorMessage(message)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, f.retries), ctx)

	return backoff.Retry(func() error {
		err := f.repo.RunInTx(ctx, func(tx *gorm.DB) error {
			return f.record(ctx, tx, key, msg)
		})
		if err == nil || errors.Is(err, repo.ErrDuplicateKey) || ledgererr.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func (f *FailureRecorder) record(ctx context.Context, tx *gorm.DB, key, msg string) error {
	txn, err := f.repo.FindTransactionByKeyForUpdate(ctx, tx, key)
	if err != nil {
		return err
	}
	now := f.now()
	if txn == nil {
		// the attempt's PENDING row went away with its rollback
		return f.repo.CreateTransaction(ctx, tx, &model.Transaction{
			IdempotencyKey: key,
			Status:         model.TransactionFailed,
			ErrorMessage:   &msg,
			CreatedAt:      now,
			CompletedAt:    &now,
		})
	}
	if txn.Status.Terminal() {
		f.log.Warnw("transaction already settled, keeping its status", "idempotency_key", key, "status", txn.Status)
		return nil
	}
	txn.Status = model.TransactionFailed
	txn.ErrorMessage = &msg
	txn.CompletedAt = &now
	return f.repo.SaveTransaction(ctx, tx, txn)
}

func sanitizeErrorMessage(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return fallbackErrorMessage
	}
	if utf8.RuneCountInString(msg) <= model.MaxErrorMessageLength {
		return msg
	}
	return string([]rune(msg)[:model.MaxErrorMessageLength])
}
