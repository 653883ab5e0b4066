package models

import "time"

// Reminder kinds.
const (
	ReminderHalfway   = "halfway"
	ReminderFinalHour = "1_hour"
)

// ReminderMarker records that a reminder of a given kind was sent for a
// batch. Append-only; the unique (batch, kind) pair makes reminders
// at-most-once.
type ReminderMarker struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	BatchID   uint   `gorm:"index;uniqueIndex:idx_batch_reminder;not null"`
	Kind      string `gorm:"size:16;uniqueIndex:idx_batch_reminder;not null"`
	CreatedAt time.Time
}
