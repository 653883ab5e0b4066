package models

import "time"

// Abstention records that a participant explicitly declined to estimate an
// item. Counts toward completion but contributes no point value.
type Abstention struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	BatchID     uint   `gorm:"index;uniqueIndex:idx_batch_item_abstainer;not null"`
	ItemKey     string `gorm:"size:16;uniqueIndex:idx_batch_item_abstainer;not null"`
	Participant string `gorm:"size:64;uniqueIndex:idx_batch_item_abstainer;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
