package model

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the ledger owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &Transaction{}, &LedgerEntry{}, &OutboxEvent{}, &AuditLog{})
}
