package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AuditTransferOut = "TRANSFER_OUT"
	AuditTransferIn  = "TRANSFER_IN"
)

type AuditLog struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountNumber string          `gorm:"size:64;not null;index" json:"account_number"`
	Action        string          `gorm:"size:32;not null" json:"action"`
	Amount        decimal.Decimal `gorm:"type:numeric(19,4);not null" json:"amount"`
	Timestamp     time.Time       `gorm:"not null" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (l *AuditLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
