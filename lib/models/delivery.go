package models

import "time"

type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)

// DeliveryRecord is one attempt at handing an item to one sink. The log is
// append-only and only used for audit and replay, never for deciding what is new.
type DeliveryRecord struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ItemID      string         `gorm:"index;not null" json:"item_id"`
	Account     string         `gorm:"index;not null" json:"account"`
	Sink        string         `gorm:"not null" json:"sink"`
	Status      DeliveryStatus `gorm:"not null" json:"status"`
	Error       string         `json:"error,omitempty"`
	AttemptedAt time.Time      `gorm:"index;not null" json:"attempted_at"`
	Payload     string         `json:"-"` // Wire event as sent, kept for replays
}

type DeliveryRecords []DeliveryRecord
