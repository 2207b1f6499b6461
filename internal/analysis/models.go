// Package analysis provides the alert worker: the durable event
// consumer, the alert engine, the analysis-side stores, and the
// read-only listing API.
//
// The analysis store is a separate bounded context from the ingestion
// store: it keeps its own copy of every reading delivered through the
// queue, and its reading ids are not comparable to ingestion ids.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the alert severity level.
type Severity string

// Alert severity levels.
const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Reading is the analysis-side copy of a sensor reading, persisted by
// the consumer from the event payload. Append-only.
type Reading struct {
	ID              int64     `gorm:"primaryKey"`
	FieldID         uuid.UUID `gorm:"type:uuid;not null;index:idx_readings_field"`
	CapturedAt      time.Time `gorm:"not null"`
	TemperatureC    *float64
	SoilMoisturePct *float64
	PrecipitationMm *float64
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the Reading model.
func (Reading) TableName() string {
	return "readings"
}

// Alert is a notification generated by the alert engine. Append-only.
// ReadingID is an informational back-reference to the triggering
// reading in this store; it is never used as a foreign key.
type Alert struct {
	ID          int64     `gorm:"primaryKey"`
	FieldID     uuid.UUID `gorm:"type:uuid;not null;index:idx_alerts_field"`
	Message     string    `gorm:"size:500;not null"`
	Severity    Severity  `gorm:"size:20;not null"`
	GeneratedAt time.Time `gorm:"not null"`
	ReadingID   *int64
}

// TableName specifies the table name for the Alert model.
func (Alert) TableName() string {
	return "alerts"
}
