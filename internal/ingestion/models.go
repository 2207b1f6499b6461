// Package ingestion provides the sensor reading ingestion service: the
// write/read HTTP API, the reading store, the ownership gate client,
// and event publication to the analysis pipeline.
package ingestion

import (
	"time"

	"github.com/google/uuid"

	"agrosolutions.dev/sensor-pipeline/pkg/event"
)

// OriginAggregated is the origin tag carried by synthetic bucket rows.
const OriginAggregated = "aggregated"

// SensorReading is a persisted sensor capture for a field. Rows are
// append-only: never updated, never deleted.
type SensorReading struct {
	ID              int64     `gorm:"primaryKey"`
	PropertyID      uuid.UUID `gorm:"type:uuid;not null;index"`
	FieldID         uuid.UUID `gorm:"type:uuid;not null;index:idx_field_captured"`
	Origin          string    `gorm:"size:30;not null"`
	CapturedAt      time.Time `gorm:"not null;index:idx_field_captured"`
	SoilMoisturePct *float64
	TemperatureC    *float64
	PrecipitationMm *float64
	DeviceID        *string   `gorm:"size:50"`
	CorrelationID   *string   `gorm:"size:100"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the SensorReading model.
func (SensorReading) TableName() string {
	return "sensor_readings"
}

// HasMetric reports whether at least one metric is present.
func (r *SensorReading) HasMetric() bool {
	return r.SoilMoisturePct != nil || r.TemperatureC != nil || r.PrecipitationMm != nil
}

// ToEvent converts the persisted reading into its wire representation,
// including the server-assigned id.
func (r *SensorReading) ToEvent() *event.Reading {
	return &event.Reading{
		ID:            r.ID,
		PropertyID:    r.PropertyID,
		FieldID:       r.FieldID,
		Origin:        r.Origin,
		CapturedAtUTC: r.CapturedAt.UTC(),
		Metrics: &event.Metrics{
			SoilMoisturePct: r.SoilMoisturePct,
			TemperatureC:    r.TemperatureC,
			PrecipitationMm: r.PrecipitationMm,
		},
		Meta: &event.Meta{
			DeviceID:      r.DeviceID,
			CorrelationID: r.CorrelationID,
		},
	}
}
