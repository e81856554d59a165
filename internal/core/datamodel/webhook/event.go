package webhook

import (
	"time"

	"gorm.io/datatypes"
)

// Event records an inbound gateway event once it has been dispatched.
type Event struct {
	ID          int64          `gorm:"primaryKey"`
	Provider    string         `gorm:"column:provider;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventID     string         `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventType   string         `gorm:"column:event_type;not null"`
	ExternalID  string         `gorm:"column:external_id;not null;index"`
	Outcome     string         `gorm:"column:outcome;not null"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	ProcessedAt time.Time      `gorm:"column:processed_at;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}

func (Event) TableName() string {
	return "webhook_events"
}
