// Package repotest provides an in-memory SQLite ledger store for tests.
package repotest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory database with every ledger table migrated.
// SQLite has no row locks, so the pool is pinned to one connection and units
// are serialized.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, model.AutoMigrate(db))
	return db
}

// SeedAccount inserts an account with the given balance.
func SeedAccount(t testing.TB, db *gorm.DB, number, currency, balance string, status model.AccountStatus) *model.Account {
	t.Helper()
	a := &model.Account{
		AccountNumber: number,
		Currency:      currency,
		Balance:       decimal.RequireFromString(balance),
		Status:        status,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// Account reloads an account by number.
func Account(t testing.TB, db *gorm.DB, number string) model.Account {
	t.Helper()
	var a model.Account
	require.NoError(t, db.Where("account_number = ?", number).Take(&a).Error)
	return a
}

// Count returns the row count of the model's table.
func Count(t testing.TB, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
