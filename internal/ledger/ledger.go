// Package ledger persists votes and abstentions, idempotent at the
// (batch, item, participant) triple.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/refinement-bot/refinery/internal/models"
	"gorm.io/gorm"
)

// Store reads and writes the vote ledger.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertVote records points for a triple, overwriting any earlier value.
// A vote replaces an abstention for the same triple. Reports whether the
// write succeeded and whether it revised an existing vote.
func (s *Store) UpsertVote(batchID uint, participant, itemKey string, points int) (ok, wasUpdate bool, err error) {
	if err := s.RemoveAbstention(batchID, participant, itemKey); err != nil {
		return false, false, err
	}

	var existing models.Vote
	findErr := s.db.Where("batch_id = ? AND participant = ? AND item_key = ?",
		batchID, participant, itemKey).First(&existing).Error
	switch {
	case findErr == nil:
		existing.Points = points
		if err := s.db.Save(&existing).Error; err != nil {
			return false, false, fmt.Errorf("ledger: update vote: %w", err)
		}
		return true, true, nil
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		vote := models.Vote{BatchID: batchID, Participant: participant, ItemKey: itemKey, Points: points}
		if err := s.db.Create(&vote).Error; err != nil {
			return false, false, fmt.Errorf("ledger: insert vote: %w", err)
		}
		return true, false, nil
	default:
		return false, false, fmt.Errorf("ledger: find vote: %w", findErr)
	}
}

// UpsertAbstention records an abstention for a triple, replacing any vote.
func (s *Store) UpsertAbstention(batchID uint, participant, itemKey string) (ok, wasUpdate bool, err error) {
	if err := s.RemoveVote(batchID, participant, itemKey); err != nil {
		return false, false, err
	}

	var existing models.Abstention
	findErr := s.db.Where("batch_id = ? AND participant = ? AND item_key = ?",
		batchID, participant, itemKey).First(&existing).Error
	switch {
	case findErr == nil:
		// Nothing to change; touch UpdatedAt to record the re-submission.
		if err := s.db.Save(&existing).Error; err != nil {
			return false, false, fmt.Errorf("ledger: update abstention: %w", err)
		}
		return true, true, nil
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		ab := models.Abstention{BatchID: batchID, Participant: participant, ItemKey: itemKey}
		if err := s.db.Create(&ab).Error; err != nil {
			return false, false, fmt.Errorf("ledger: insert abstention: %w", err)
		}
		return true, false, nil
	default:
		return false, false, fmt.Errorf("ledger: find abstention: %w", findErr)
	}
}

// StoreVote inserts a vote without the upsert dance. A duplicate triple
// reports not-stored rather than an error.
func (s *Store) StoreVote(batchID uint, participant, itemKey string, points int) (bool, error) {
	vote := models.Vote{BatchID: batchID, Participant: participant, ItemKey: itemKey, Points: points}
	err := s.db.Create(&vote).Error
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("ledger: store vote: %w", err)
	}
	return true, nil
}

// RemoveVote deletes the vote for a triple, if present.
func (s *Store) RemoveVote(batchID uint, participant, itemKey string) error {
	err := s.db.Where("batch_id = ? AND participant = ? AND item_key = ?",
		batchID, participant, itemKey).Delete(&models.Vote{}).Error
	if err != nil {
		return fmt.Errorf("ledger: remove vote: %w", err)
	}
	return nil
}

// RemoveAbstention deletes the abstention for a triple, if present.
func (s *Store) RemoveAbstention(batchID uint, participant, itemKey string) error {
	err := s.db.Where("batch_id = ? AND participant = ? AND item_key = ?",
		batchID, participant, itemKey).Delete(&models.Abstention{}).Error
	if err != nil {
		return fmt.Errorf("ledger: remove abstention: %w", err)
	}
	return nil
}

// Votes returns all votes for a batch.
func (s *Store) Votes(batchID uint) ([]models.Vote, error) {
	var votes []models.Vote
	if err := s.db.Where("batch_id = ?", batchID).Order("id").Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("ledger: load votes: %w", err)
	}
	return votes, nil
}

// Abstentions returns all abstentions for a batch.
func (s *Store) Abstentions(batchID uint) ([]models.Abstention, error) {
	var abs []models.Abstention
	if err := s.db.Where("batch_id = ?", batchID).Order("id").Find(&abs).Error; err != nil {
		return nil, fmt.Errorf("ledger: load abstentions: %w", err)
	}
	return abs, nil
}

// HasVoted reports whether a participant has at least one vote in the batch.
func (s *Store) HasVoted(batchID uint, participant string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Vote{}).
		Where("batch_id = ? AND participant = ?", batchID, participant).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ledger: count votes: %w", err)
	}
	return count > 0, nil
}

// isUniqueViolation detects a unique-constraint failure across the sqlite
// and mysql drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
