package service

import (
	"context"
	"errors"
	"sort"

	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"gorm.io/gorm"
)

// AccountLocker takes exclusive row locks on accounts inside the caller's unit.
// Locks are always requested in ascending account-number order, whatever the
// direction of the transfer, so concurrent units can never wait on each other in a cycle.
type AccountLocker struct {
	repo repo.RepositoryInterface
}

func NewAccountLocker(r repo.RepositoryInterface) *AccountLocker {
	return &AccountLocker{repo: r}
}

// LockPair locks a and b and returns them in argument order.
func (l *AccountLocker) LockPair(ctx context.Context, tx *gorm.DB, a, b string) (*model.Account, *model.Account, error) {
	locked, err := l.LockAll(ctx, tx, a, b)
	if err != nil {
		return nil, nil, err
	}
	return locked[a], locked[b], nil
}

// LockAll locks every distinct account number in lock order. A missing account
// aborts before any account later in the order is touched.
func (l *AccountLocker) LockAll(ctx context.Context, tx *gorm.DB, numbers ...string) (map[string]*model.Account, error) {
	locked := make(map[string]*model.Account, len(numbers))
	for _, number := range lockOrder(numbers...) {
		acc, err := l.repo.GetAccountForUpdate(ctx, tx, number)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ledgererr.New(ledgererr.KindAccountNotFound, "Account not found: %s", number)
			}
			return nil, err
		}
		locked[number] = acc
	}
	return locked, nil
}

// lockOrder returns the distinct numbers sorted lexicographically.
func lockOrder(numbers ...string) []string {
	out := make([]string, 0, len(numbers))
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
