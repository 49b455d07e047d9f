package model

import (
	"strconv"
	"time"
)

// Outbox event types relayed to Kafka by the poller.
const (
	EventPurchaseRecorded    = "purchase.recorded"
	EventSettlementCompleted = "settlement.completed"
	EventSettlementFailed    = "settlement.failed"
)

type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID uint64    `gorm:"not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
	Processed   bool      `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }

// Key partitions events of the same aggregate onto one Kafka partition.
func (e OutboxEvent) Key() string {
	return e.Aggregate + "-" + uitoa(e.AggregateID)
}

func uitoa(v uint64) string { return strconv.FormatUint(v, 10) }
