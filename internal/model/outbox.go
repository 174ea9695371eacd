package model

import "time"

// OutboxEvent is a completion notification waiting to be relayed.
type OutboxEvent struct {
	ID           uint64    `gorm:"primaryKey"`
	Aggregate    string    `gorm:"size:64;not null"`
	AggregateKey string    `gorm:"size:64;not null"`
	EventType    string    `gorm:"size:64;not null"`
	Payload      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
	Processed    bool      `gorm:"not null;default:false;index"`
	ProcessedAt  *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }
