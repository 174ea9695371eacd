package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	db := repotest.NewDB(t)
	return NewRepository(db, zap.NewNop().Sugar()), db
}

func TestOptimisticLock_StaleRevision(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, db, "ACC-1", "USD", "100", model.AccountActive)

	err := r.RunInTx(ctx, func(tx *gorm.DB) error {
		w, err := r.GetAccountForUpdate(ctx, tx, "ACC-1")
		if err != nil {
			return err
		}
		return r.UpdateAccountBalance(ctx, tx, w.ID, w.Balance.Add(decimal.NewFromInt(10)), w.Revision)
	})
	require.NoError(t, err)

	// a writer still holding revision 0 must lose
	err = r.RunInTx(ctx, func(tx *gorm.DB) error {
		return r.UpdateAccountBalance(ctx, tx, acc.ID, decimal.NewFromInt(1), 0)
	})
	assert.ErrorIs(t, err, ErrRevisionConflict)

	final := repotest.Account(t, db, "ACC-1")
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(110)), final.Balance.String())
	assert.Equal(t, uint64(1), final.Revision)
}

func TestGetAccountForUpdate_NotFound(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	_, err := r.GetAccountForUpdate(ctx, db, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateTransaction_DuplicateKey(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateTransaction(ctx, db, &model.Transaction{IdempotencyKey: "k1", Status: model.TransactionPending}))
	err := r.CreateTransaction(ctx, db, &model.Transaction{IdempotencyKey: "k1", Status: model.TransactionPending})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	found, err := r.FindTransactionByKey(ctx, db, "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, model.TransactionPending, found.Status)

	missing, err := r.FindTransactionByKey(ctx, db, "k2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveTransaction(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	txn := &model.Transaction{IdempotencyKey: "k1", Status: model.TransactionPending}
	require.NoError(t, r.CreateTransaction(ctx, db, txn))

	msg := "nope"
	now := model.Now()
	txn.Status, txn.ErrorMessage, txn.CompletedAt = model.TransactionFailed, &msg, &now
	require.NoError(t, r.SaveTransaction(ctx, db, txn))

	got, err := r.FindTransactionByKeyForUpdate(ctx, db, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "nope", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(*got.CompletedAt))
}

func TestOutboxRoundTrip(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.CreateOutboxEvent(ctx, db, &model.OutboxEvent{
			Aggregate: "Account", AggregateKey: "ACC-1", EventType: model.EventTransferCompleted,
			Payload: fmt.Sprintf(`{"n":%d}`, i),
		}))
	}
	evts, err := r.PollOutbox(ctx, 2)
	require.NoError(t, err)
	require.Len(t, evts, 2)

	require.NoError(t, r.MarkOutboxProcessed(ctx, evts[0].ID))
	evts, err = r.PollOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}

func TestResetLedger(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	repotest.SeedAccount(t, db, "ACC-A", "USD", "1", model.AccountActive)
	require.NoError(t, r.CreateTransaction(ctx, db, &model.Transaction{IdempotencyKey: "k", Status: model.TransactionPending}))

	require.NoError(t, r.ResetLedger(ctx, map[string]decimal.Decimal{"ACC-A": decimal.NewFromInt(10000)}))

	assert.Equal(t, int64(0), repotest.Count(t, db, &model.Transaction{}))
	a := repotest.Account(t, db, "ACC-A")
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(10000)))

	err := r.ResetLedger(ctx, map[string]decimal.Decimal{"ACC-X": decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateAccount_Idempotent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := r.CreateAccount(ctx, &model.Account{AccountNumber: "ACC-1", Currency: "USD", Balance: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, created)

	again := &model.Account{AccountNumber: "ACC-1", Currency: "USD", Balance: decimal.NewFromInt(99)}
	created, err = r.CreateAccount(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, again.Balance.Equal(decimal.NewFromInt(5)))
}

func TestClassify(t *testing.T) {
	plain := errors.New("boom")
	cases := []struct {
		name     string
		err      error
		wantIs   error
		wantKind ledgererr.Kind
	}{
		{"gorm duplicate", gorm.ErrDuplicatedKey, ErrDuplicateKey, ""},
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrDuplicateKey, ""},
		{"pg lock timeout", &pgconn.PgError{Code: "55P03"}, ledgererr.ErrLockContention, ledgererr.KindLockContention},
		{"pg deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), ledgererr.ErrLockContention, ledgererr.KindLockContention},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, ledgererr.ErrOptimisticConflict, ledgererr.KindOptimisticConflict},
		{"sqlite unique", errors.New("UNIQUE constraint failed: transactions.idempotency_key"), ErrDuplicateKey, ""},
		{"sqlite busy", errors.New("database is locked"), ledgererr.ErrLockContention, ledgererr.KindLockContention},
		{"other", plain, plain, ledgererr.KindUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.ErrorIs(t, got, tc.wantIs)
			if tc.wantKind != "" {
				assert.Equal(t, tc.wantKind, ledgererr.KindOf(got))
			}
		})
	}
	assert.NoError(t, Classify(nil))
}
