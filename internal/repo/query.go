package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetAccount reads an account without locking it.
func (r *Repository) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	var a model.Account
	if err := r.db.WithContext(ctx).Where("account_number = ?", number).Take(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts an account unless its number already exists.
func (r *Repository) CreateAccount(ctx context.Context, a *model.Account) (bool, error) {
	var existing model.Account
	err := r.db.WithContext(ctx).Where("account_number = ?", a.AccountNumber).Take(&existing).Error
	if err == nil {
		*a = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := Classify(r.db.WithContext(ctx).Create(a).Error); err != nil {
		return false, err
	}
	return true, nil
}

// RecentTransactions returns the newest transactions with their entries and accounts.
func (r *Repository) RecentTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return r.ListTransactions(ctx, 0, limit)
}

// ListTransactions pages transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, offset, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Entries.Account").
		Order("created_at desc, id").
		Offset(offset).
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CountTransactions returns the total number of transactions.
func (r *Repository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).Count(&n).Error
	return n, err
}

// EntriesForTransaction returns the ledger legs of one transaction.
func (r *Repository) EntriesForTransaction(ctx context.Context, tx *gorm.DB, txID uuid.UUID) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := tx.WithContext(ctx).Where("transaction_id = ?", txID).Order("direction desc").Find(&entries).Error
	return entries, err
}

// TotalBalance sums every account balance.
func (r *Repository) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var accounts []model.Account
	if err := r.db.WithContext(ctx).Find(&accounts).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

// CreateAuditLogs appends audit rows in one statement.
func (r *Repository) CreateAuditLogs(ctx context.Context, logs []model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&logs).Error
}

// ResetLedger deletes every transfer artefact and restores the given balances.
func (r *Repository) ResetLedger(ctx context.Context, balances map[string]decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&model.LedgerEntry{}, &model.AuditLog{}, &model.OutboxEvent{}, &model.Transaction{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		for number, bal := range balances {
			res := tx.Model(&model.Account{}).Where("account_number = ?", number).
				Updates(map[string]interface{}{"balance": bal, "revision": gorm.Expr("revision + 1")})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("account %s: %w", number, gorm.ErrRecordNotFound)
			}
		}
		return nil
	})
}
