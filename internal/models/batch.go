package models

import "time"

// Batch lifecycle states.
const (
	BatchActive     = "active"
	BatchDiscussing = "discussing"
	BatchCompleted  = "completed"
	BatchCancelled  = "cancelled"
)

// Batch is one estimation round over a set of work items.
type Batch struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Status      string    `gorm:"size:16;default:active;index"`
	Facilitator string    `gorm:"size:64;not null"`
	Deadline    time.Time `gorm:"not null"`
	// Chat message IDs for the posted status and results messages, kept so
	// the engine can edit them in place. Nil until posted.
	StatusMessageID  *string `gorm:"size:64"`
	ResultsMessageID *string `gorm:"size:64"`
	ChannelID        string  `gorm:"size:64"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time

	Items  []WorkItem     `gorm:"foreignKey:BatchID"`
	Roster []RosterMember `gorm:"foreignKey:BatchID"`
}

// Live reports whether the batch still accepts submissions or finals.
func (b *Batch) Live() bool {
	return b.Status == BatchActive || b.Status == BatchDiscussing
}
