package models

import "time"

// Vote is one participant's point estimate for one work item. The
// (batch, item, participant) triple is unique; re-submission updates in place.
type Vote struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	BatchID     uint   `gorm:"index;uniqueIndex:idx_batch_item_voter;not null"`
	ItemKey     string `gorm:"size:16;uniqueIndex:idx_batch_item_voter;not null"`
	Participant string `gorm:"size:64;uniqueIndex:idx_batch_item_voter;not null"`
	Points      int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
