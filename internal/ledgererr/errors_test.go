package ledgererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), KindUnexpected},
		{"direct", New(KindAccountFrozen, "frozen"), KindAccountFrozen},
		{"wrapped", fmt.Errorf("ctx: %w", New(KindInsufficientFunds, "no money")), KindInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("transfer: %w", New(KindInsufficientFunds, "Insufficient funds in account: %s", "ACC-1"))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ErrAccountFrozen)
	assert.Equal(t, "transfer: Insufficient funds in account: ACC-1", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("lock timeout")
	err := Wrap(KindLockContention, cause, "System busy, please retry the transaction")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrLockContention)
	assert.True(t, IsRetryable(err))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindLockContention.Retryable())
	assert.True(t, KindOptimisticConflict.Retryable())
	assert.False(t, KindInsufficientFunds.Retryable())
	assert.False(t, KindIdempotencyConflict.Retryable())

	for _, k := range []Kind{KindAccountNotFound, KindAccountFrozen, KindInsufficientFunds, KindCurrencyMismatch} {
		assert.True(t, k.RecordsFailure(), k)
	}
	for _, k := range []Kind{KindValidation, KindIdempotencyConflict, KindLockContention, KindOptimisticConflict, KindUnexpected} {
		assert.False(t, k.RecordsFailure(), k)
	}
}

func TestPublicMessageHidesUnexpected(t *testing.T) {
	assert.Equal(t, "Unexpected server error", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "Unexpected server error", PublicMessage(Wrap(KindUnexpected, errors.New("x"), "internal")))
	assert.Equal(t, "Account not found: ACC-9", PublicMessage(New(KindAccountNotFound, "Account not found: %s", "ACC-9")))
}
