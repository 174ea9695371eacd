package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionFailed
}

const (
	// MaxErrorMessageLength bounds Transaction.ErrorMessage, in characters.
	MaxErrorMessageLength   = 255
	MaxIdempotencyKeyLength = 255
)

// Transaction is one logical transfer attempt, keyed by the client's idempotency key.
// It owns zero entries, or exactly one DEBIT and one CREDIT once COMPLETED.
type Transaction struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string            `gorm:"size:255;not null;uniqueIndex" json:"idempotency_key"`
	Status         TransactionStatus `gorm:"size:16;not null" json:"status"`
	ErrorMessage   *string           `gorm:"size:255" json:"error_message,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Entries        []LedgerEntry     `gorm:"foreignKey:TransactionID" json:"-"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = Now()
	}
	return nil
}

// Now is the timestamp source for persisted rows, truncated to the store's precision
// so that a value read back compares equal to the one written.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
