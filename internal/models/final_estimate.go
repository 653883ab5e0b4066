package models

import "time"

// FinalEstimate is the settled point value for one work item, written either
// by the consensus analysis or by the facilitator after discussion.
type FinalEstimate struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   uint   `gorm:"index;uniqueIndex:idx_batch_final;not null"`
	ItemKey   string `gorm:"size:16;uniqueIndex:idx_batch_final;not null"`
	Points    int    `gorm:"not null"`
	Rationale string `gorm:"type:text"` // empty for consensus-derived finals
	CreatedAt time.Time
}
