package service

import (
	"context"

	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
)

// Outcome of resolving an idempotency key.
type Outcome int

const (
	// OutcomeNew means the key is unused and the caller may create a PENDING transaction.
	OutcomeNew Outcome = iota
	// OutcomeReplay means the key already completed; Transaction is the stored result.
	OutcomeReplay
)

// Resolution is the result of IdempotencyResolver.Resolve.
type Resolution struct {
	Outcome     Outcome
	Transaction *model.Transaction
}

// IdempotencyResolver decides whether a key is new, a safe replay, or a conflicting reuse.
// It only reads; the unique index on the key settles races between two NEW resolutions.
type IdempotencyResolver struct {
	repo repo.RepositoryInterface
}

func NewIdempotencyResolver(r repo.RepositoryInterface) *IdempotencyResolver {
	return &IdempotencyResolver{repo: r}
}

func (r *IdempotencyResolver) Resolve(ctx context.Context, key string) (Resolution, error) {
	existing, err := r.repo.FindTransactionByKey(ctx, r.repo.DB(ctx), key)
	if err != nil {
		return Resolution{}, err
	}
	if existing == nil {
		return Resolution{Outcome: OutcomeNew}, nil
	}
	switch {
	case existing.Status == model.TransactionCompleted:
		return Resolution{Outcome: OutcomeReplay, Transaction: existing}, nil
	case existing.Status.Terminal():
		// A failed attempt burns its key for good; the client must use a fresh one.
		return Resolution{}, ledgererr.New(ledgererr.KindIdempotencyConflict,
			"Idempotency key cannot be reused with transaction status: %s", existing.Status)
	default:
		return Resolution{}, errAlreadyProcessing(key)
	}
}

func errAlreadyProcessing(key string) error {
	return ledgererr.New(ledgererr.KindIdempotencyConflict,
		"Transfer is already being processed for idempotency key: %s", key)
}
