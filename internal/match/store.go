// Package match is the client's view of the shared backend: the active
// match record and the match-scoped realtime channel. The backend owns
// authoritative state and at-least-once broadcast delivery; this package
// only reads and writes through it.
package match

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Match status values.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusPlaying   = "playing"
	StatusCancelled = "cancelled"
)

// Match is the active-match record.
type Match struct {
	ID        uint   `gorm:"primaryKey"`
	Player1ID string `gorm:"index"`
	Player2ID string `gorm:"index"`
	Status    string `gorm:"index"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"`
}

// Store reads and writes match records.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to the backend database and ensures the matches table
// exists.
func Open(dsn string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open match store: %w", err)
	}
	if err := db.AutoMigrate(&Match{}); err != nil {
		return nil, fmt.Errorf("failed to migrate match store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// NewStore wraps an existing gorm handle. Used by tests.
func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, logger: logger}
}

// Get fetches a match by id.
func (s *Store) Get(ctx context.Context, id uint) (*Match, error) {
	var m Match
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("match %d: %w", id, err)
	}
	return &m, nil
}

// ActiveMatch returns the player's current non-cancelled match, if any.
func (s *Store) ActiveMatch(ctx context.Context, playerID string) (*Match, error) {
	var m Match
	err := s.db.WithContext(ctx).
		Where("(player1_id = ? OR player2_id = ?) AND status <> ?", playerID, playerID, StatusCancelled).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateStatus writes the match's authoritative status.
func (s *Store) UpdateStatus(ctx context.Context, id uint, status string) error {
	res := s.db.WithContext(ctx).Model(&Match{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update match %d status: %w", id, res.Error)
	}
	s.logger.WithFields(logrus.Fields{
		"match":  id,
		"status": status,
	}).Info("Match status updated")
	return nil
}

// MarkCancelled sets the match status to cancelled. Idempotent: a match
// that is already cancelled is left untouched.
func (s *Store) MarkCancelled(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND status <> ?", id, StatusCancelled).
		Update("status", StatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("failed to cancel match %d: %w", id, res.Error)
	}
	return nil
}
