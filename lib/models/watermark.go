package models

import "time"

// Watermark is the id of the newest item handled for an account. Rows are
// never deleted, so an account removed from monitoring keeps its cursor.
type Watermark struct {
	Account   string    `gorm:"primaryKey" json:"account"`
	ItemID    string    `gorm:"not null" json:"item_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Watermarks []Watermark
