package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EntryDirection string

const (
	EntryDebit  EntryDirection = "DEBIT"
	EntryCredit EntryDirection = "CREDIT"
)

// AmountScale is the number of fractional digits stored for money.
const AmountScale = 4

// LedgerEntry is one write-once leg of a transfer.
type LedgerEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;index" json:"transaction_id"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"account_id"`
	Account       *Account        `gorm:"foreignKey:AccountID" json:"-"`
	Amount        decimal.Decimal `gorm:"type:numeric(19,4);not null;check:chk_ledger_entries_amount_positive,amount > 0" json:"amount"`
	Direction     EntryDirection  `gorm:"size:8;not null" json:"direction"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = Now()
	}
	return nil
}
