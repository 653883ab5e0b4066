package models

import "time"

// RosterMember is a participant expected to vote in a batch.
type RosterMember struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   uint   `gorm:"index;uniqueIndex:idx_batch_member;not null"`
	Name      string `gorm:"size:64;uniqueIndex:idx_batch_member;not null"`
	CreatedAt time.Time
}
