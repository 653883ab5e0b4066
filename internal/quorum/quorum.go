// Package quorum answers progress and completion questions over the vote
// ledger. Two distinct notions of "done" live here: a participant has voted
// (progress display) versus a participant has covered every item with a vote
// or abstention (the completion trigger).
package quorum

import (
	"fmt"

	"github.com/refinement-bot/refinery/internal/models"
	"gorm.io/gorm"
)

// Tracker derives participation counts for a batch.
type Tracker struct {
	db *gorm.DB
}

// New creates a Tracker.
func New(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// VotedParticipantCount counts distinct participants with at least one vote.
// Abstention-only participants are excluded; this is the "N/M received"
// progress number, not the completion check.
func (t *Tracker) VotedParticipantCount(batchID uint) (int, error) {
	var count int64
	err := t.db.Model(&models.Vote{}).
		Where("batch_id = ?", batchID).
		Distinct("participant").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("quorum: count voted participants: %w", err)
	}
	return int(count), nil
}

// CompletedParticipantCount counts participants whose votes and abstentions
// together cover every item in the batch.
func (t *Tracker) CompletedParticipantCount(batchID uint, itemCount int) (int, error) {
	if itemCount == 0 {
		return 0, nil
	}
	var count int64
	err := t.db.Raw(`
		SELECT COUNT(*) FROM (
			SELECT participant FROM (
				SELECT participant, item_key FROM votes WHERE batch_id = ?
				UNION
				SELECT participant, item_key FROM abstentions WHERE batch_id = ?
			) actions
			GROUP BY participant
			HAVING COUNT(DISTINCT item_key) >= ?
		) complete`, batchID, batchID, itemCount).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("quorum: count completed participants: %w", err)
	}
	return int(count), nil
}

// WithoutAnyAction returns roster members with no votes and no abstentions,
// in roster order. This is the reminder target list.
func (t *Tracker) WithoutAnyAction(batchID uint) ([]string, error) {
	var names []string
	err := t.db.Raw(`
		SELECT name FROM roster_members
		WHERE batch_id = ?
		  AND name NOT IN (SELECT participant FROM votes WHERE batch_id = ?)
		  AND name NOT IN (SELECT participant FROM abstentions WHERE batch_id = ?)
		ORDER BY id`, batchID, batchID, batchID).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("quorum: load idle participants: %w", err)
	}
	return names, nil
}
