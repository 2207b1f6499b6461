// Package event defines the wire format shared by the ingestion
// publisher and the analysis consumer.
package event

import (
	"time"

	"github.com/google/uuid"
)

// TypeReadingReceived is the event type tag carried by every reading event.
// The value is fixed; the analysis side matches on it by convention.
const TypeReadingReceived = "LeituraSensorRecebida"

// ReadingReceived is the envelope published to the broker whenever the
// ingestion service persists a sensor reading. The embedded reading is a
// full copy: the consumer never calls back into the ingestion service.
//
// The envelope carries no schema version and no dedup key. EventID exists
// for tracing only; redelivery after a lost ack produces a duplicate
// reading on the analysis side and that is accepted.
type ReadingReceived struct {
	EventType     string    `json:"eventType"`
	EventID       uuid.UUID `json:"eventId"`
	OccurredAtUTC time.Time `json:"occurredAtUtc"`
	Reading       *Reading  `json:"leitura"`
}

// Reading is the embedded copy of a persisted sensor reading, including
// its server-assigned id from the ingestion store.
type Reading struct {
	ID            int64     `json:"id"`
	PropertyID    uuid.UUID `json:"idPropriedade"`
	FieldID       uuid.UUID `json:"idTalhao"`
	Origin        string    `json:"origem"`
	CapturedAtUTC time.Time `json:"dataHoraCapturaUtc"`
	Metrics       *Metrics  `json:"metricas"`
	Meta          *Meta     `json:"meta"`
}

// Metrics holds the optional sensor measurements. At least one is
// non-nil on events produced by the ingestion service, but the consumer
// must not rely on that.
type Metrics struct {
	SoilMoisturePct *float64 `json:"umidadeSoloPercentual"`
	TemperatureC    *float64 `json:"temperaturaCelsius"`
	PrecipitationMm *float64 `json:"precipitacaoMilimetros"`
}

// Meta holds optional device and correlation identifiers.
type Meta struct {
	DeviceID      *string `json:"idDispositivo"`
	CorrelationID *string `json:"correlationId"`
}

// NewReadingReceived wraps a reading in a fresh envelope with a random
// event id and the current UTC time.
func NewReadingReceived(reading *Reading) *ReadingReceived {
	return &ReadingReceived{
		EventType:     TypeReadingReceived,
		EventID:       uuid.New(),
		OccurredAtUTC: time.Now().UTC(),
		Reading:       reading,
	}
}
