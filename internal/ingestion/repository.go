package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// readingStore is the storage surface the HTTP handlers depend on.
type readingStore interface {
	Insert(ctx context.Context, reading *SensorReading) (int64, error)
	QueryRange(ctx context.Context, fieldID uuid.UUID, from, to time.Time) ([]SensorReading, error)
	QueryBucketed(ctx context.Context, fieldID uuid.UUID, from, to time.Time, bucketMinutes int) ([]SensorReading, error)
}

// ReadingStore is the append-only store for sensor readings, backed by
// PostgreSQL.
type ReadingStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewReadingStore creates a ReadingStore and runs its migrations.
func NewReadingStore(db *gorm.DB, logger *slog.Logger) (*ReadingStore, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if err := db.AutoMigrate(&SensorReading{}); err != nil {
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}

	return &ReadingStore{db: db, logger: logger}, nil
}

// Insert appends a reading and returns its server-assigned id.
func (s *ReadingStore) Insert(ctx context.Context, reading *SensorReading) (int64, error) {
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return 0, fmt.Errorf("failed to insert reading: %w", err)
	}
	return reading.ID, nil
}

// QueryRange returns the field's readings with capture time in the
// half-open interval [from, to), ascending by capture time.
func (s *ReadingStore) QueryRange(ctx context.Context, fieldID uuid.UUID, from, to time.Time) ([]SensorReading, error) {
	var readings []SensorReading
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND captured_at >= ? AND captured_at < ?", fieldID, from.UTC(), to.UTC()).
		Order("captured_at ASC").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	return readings, nil
}

// QueryBucketed returns one synthetic reading per non-empty bucket of
// bucketMinutes width over [from, to). Bucket alignment is anchored at
// the Unix epoch, not at from, so boundaries are stable across queries.
func (s *ReadingStore) QueryBucketed(ctx context.Context, fieldID uuid.UUID, from, to time.Time, bucketMinutes int) ([]SensorReading, error) {
	raw, err := s.QueryRange(ctx, fieldID, from, to)
	if err != nil {
		return nil, err
	}
	return AggregateBuckets(raw, bucketMinutes), nil
}
