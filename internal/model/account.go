package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountFrozen AccountStatus = "FROZEN"
)

// Account is mutated only while exclusively locked. Revision is bumped on every
// balance write and guards against writers that bypass the lock.
type Account struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountNumber string          `gorm:"size:64;not null;uniqueIndex" json:"account_number"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Balance       decimal.Decimal `gorm:"type:numeric(19,4);not null;default:0;check:chk_accounts_balance_non_negative,balance >= 0" json:"balance"`
	Status        AccountStatus   `gorm:"size:16;not null" json:"status"`
	Revision      uint64          `gorm:"not null;default:0" json:"revision"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AccountActive
	}
	return nil
}

func (a *Account) Frozen() bool { return a.Status == AccountFrozen }
