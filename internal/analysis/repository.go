package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists analysis-side readings and alerts in PostgreSQL.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore creates a Store and runs its migrations.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if err := db.AutoMigrate(&Reading{}, &Alert{}); err != nil {
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// InsertReading appends a reading and returns its id. Duplicate copies
// of the same ingestion reading are possible on redelivery and are
// accepted.
func (s *Store) InsertReading(ctx context.Context, reading *Reading) (int64, error) {
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return reading.ID, nil
}

// InsertAlert appends an alert and returns its id.
func (s *Store) InsertAlert(ctx context.Context, alert *Alert) (int64, error) {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return alert.ID, nil
}

// RecentWindow returns all of the field's readings with capture time in
// the last window. Order is not guaranteed; out-of-order and duplicate
// readings may be present and callers must tolerate both.
func (s *Store) RecentWindow(ctx context.Context, fieldID uuid.UUID, window time.Duration) ([]Reading, error) {
	cutoff := time.Now().UTC().Add(-window)
	var readings []Reading
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND captured_at >= ?", fieldID, cutoff).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	return readings, nil
}

// HasRecentAlert reports whether an alert containing messageSubstring
// was generated for the field at or after since. Supported as a
// suppression primitive for cooldown-aware rules.
func (s *Store) HasRecentAlert(ctx context.Context, fieldID uuid.UUID, messageSubstring string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Alert{}).
		Where("field_id = ? AND message LIKE ? AND generated_at >= ?",
			fieldID, "%"+messageSubstring+"%", since.UTC()).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return count > 0, nil
}

// ListReadings returns up to top readings, newest capture first,
// optionally filtered by field.
func (s *Store) ListReadings(ctx context.Context, fieldID *uuid.UUID, top int) ([]Reading, error) {
	q := s.db.WithContext(ctx).Order("captured_at DESC").Limit(top)
	if fieldID != nil {
		q = q.Where("field_id = ?", *fieldID)
	}
	var readings []Reading
	if err := q.Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

// ListAlerts returns up to top alerts, newest first, optionally
// filtered by field.
func (s *Store) ListAlerts(ctx context.Context, fieldID *uuid.UUID, top int) ([]Alert, error) {
	q := s.db.WithContext(ctx).Order("generated_at DESC").Limit(top)
	if fieldID != nil {
		q = q.Where("field_id = ?", *fieldID)
	}
	var alerts []Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
