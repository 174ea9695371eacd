package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/richardliu001/transfer-ledger/internal/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRecorder(t *testing.T) (*FailureRecorder, *repo.Repository) {
	t.Helper()
	r := repo.NewRepository(repotest.NewDB(t), zap.NewNop().Sugar())
	return NewFailureRecorder(r, zap.NewNop().Sugar(), 2), r
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "Transfer failed", sanitizeErrorMessage(""))
	assert.Equal(t, "Transfer failed", sanitizeErrorMessage(" \t\n"))
	assert.Equal(t, "boom", sanitizeErrorMessage("boom"))

	long := strings.Repeat("é", 300)
	got := sanitizeErrorMessage(long)
	assert.Equal(t, model.MaxErrorMessageLength, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestRecordFailure_CreatesMissingTransaction(t *testing.T) {
	f, r := newRecorder(t)
	ctx := context.Background()

	require.NoError(t, f.RecordFailure(ctx, "gone", strings.Repeat("x", 400)))

	txn, err := r.FindTransactionByKey(ctx, r.DB(ctx), "gone")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, model.TransactionFailed, txn.Status)
	require.NotNil(t, txn.ErrorMessage)
	assert.Len(t, *txn.ErrorMessage, model.MaxErrorMessageLength)
	assert.NotNil(t, txn.CompletedAt)
}

func TestRecordFailure_MarksPendingFailed(t *testing.T) {
	f, r := newRecorder(t)
	ctx := context.Background()
	require.NoError(t, r.CreateTransaction(ctx, r.DB(ctx), &model.Transaction{IdempotencyKey: "p", Status: model.TransactionPending}))

	require.NoError(t, f.RecordFailure(ctx, "p", ""))

	txn, err := r.FindTransactionByKey(ctx, r.DB(ctx), "p")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, txn.Status)
	assert.Equal(t, "Transfer failed", *txn.ErrorMessage)
}

func TestRecordFailure_NeverOverwritesCompleted(t *testing.T) {
	f, r := newRecorder(t)
	ctx := context.Background()
	now := model.Now()
	require.NoError(t, r.CreateTransaction(ctx, r.DB(ctx), &model.Transaction{
		IdempotencyKey: "done",
		Status:         model.TransactionCompleted,
		CompletedAt:    &now,
	}))

	require.NoError(t, f.RecordFailure(ctx, "done", "late failure"))

	txn, err := r.FindTransactionByKey(ctx, r.DB(ctx), "done")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, txn.Status)
	assert.Nil(t, txn.ErrorMessage)
}

func TestRecordFailure_BlankKeyIsIgnored(t *testing.T) {
	f, r := newRecorder(t)
	require.NoError(t, f.RecordFailure(context.Background(), " ", "boom"))

	var n int64
	require.NoError(t, r.DB(context.Background()).Model(&model.Transaction{}).Count(&n).Error)
	assert.Zero(t, n)
}
