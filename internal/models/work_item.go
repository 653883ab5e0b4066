package models

import "time"

// WorkItem is a single estimable item within a batch, identified by the
// issue number extracted from its tracker URL.
type WorkItem struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   uint   `gorm:"index;uniqueIndex:idx_batch_item;not null"`
	Key       string `gorm:"size:16;uniqueIndex:idx_batch_item;not null"` // issue number, e.g. "15169"
	URL       string `gorm:"size:255;not null"`
	Title     string `gorm:"size:255"` // resolved lazily, empty until known
	CreatedAt time.Time
}
