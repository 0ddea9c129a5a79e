package models

import "time"

// OutboxEvent is a message committed together with the row that produced it
// and published to the bus afterwards by the outbox relay.
type OutboxEvent struct {
	ID           string     `gorm:"column:id;primaryKey"`
	Topic        string     `gorm:"column:topic;not null"`
	MessageKey   string     `gorm:"column:message_key;not null"`
	Payload      string     `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
