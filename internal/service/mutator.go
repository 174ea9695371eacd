package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceMutator applies the debit/credit pair and its two ledger entries. It must
// run inside the unit that holds both account locks; the unit's commit makes every
// write durable together.
type BalanceMutator struct {
	repo repo.RepositoryInterface
	now  func() time.Time
}

func NewBalanceMutator(r repo.RepositoryInterface) *BalanceMutator {
	return &BalanceMutator{repo: r, now: model.Now}
}

func (m *BalanceMutator) Apply(ctx context.Context, tx *gorm.DB, from, to *model.Account, amount decimal.Decimal, txn *model.Transaction) (*model.Transaction, error) {
	newFrom := from.Balance.Sub(amount)
	if newFrom.IsNegative() {
		return nil, ledgererr.New(ledgererr.KindInsufficientFunds, "Insufficient funds in account: %s", from.AccountNumber)
	}
	newTo := to.Balance.Add(amount)

	if err := m.updateBalance(ctx, tx, from, newFrom); err != nil {
		return nil, err
	}
	if err := m.updateBalance(ctx, tx, to, newTo); err != nil {
		return nil, err
	}

	now := m.now()
	entries := []model.LedgerEntry{
		{TransactionID: txn.ID, AccountID: from.ID, Amount: amount, Direction: model.EntryDebit, CreatedAt: now},
		{TransactionID: txn.ID, AccountID: to.ID, Amount: amount, Direction: model.EntryCredit, CreatedAt: now},
	}
	if err := m.repo.CreateLedgerEntries(ctx, tx, entries); err != nil {
		return nil, fmt.Errorf("create ledger entries: %w", err)
	}

	completed := *txn
	completed.Status = model.TransactionCompleted
	completed.ErrorMessage = nil
	completed.CompletedAt = &now
	if err := m.repo.SaveTransaction(ctx, tx, &completed); err != nil {
		return nil, fmt.Errorf("complete transaction: %w", err)
	}
	return &completed, nil
}

func (m *BalanceMutator) updateBalance(ctx context.Context, tx *gorm.DB, acc *model.Account, balance decimal.Decimal) error {
	err := m.repo.UpdateAccountBalance(ctx, tx, acc.ID, balance, acc.Revision)
	if errors.Is(err, repo.ErrRevisionConflict) {
		return ledgererr.Wrap(ledgererr.KindOptimisticConflict, err, "Concurrent update detected. Please retry.")
	}
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", acc.AccountNumber, err)
	}
	acc.Balance = balance
	acc.Revision++
	return nil
}
