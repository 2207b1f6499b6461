package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// createReadingRequest is the POST /v1/sensor-readings body.
type createReadingRequest struct {
	PropertyID    uuid.UUID      `json:"propertyId"`
	FieldID       uuid.UUID      `json:"fieldId"`
	Origin        string         `json:"origin"`
	CapturedAtUTC time.Time      `json:"capturedAtUtc"`
	Metrics       metricsPayload `json:"metrics"`
	Meta          *metaPayload   `json:"meta"`
}

type metricsPayload struct {
	SoilMoisturePercent *float64 `json:"soilMoisturePercent"`
	TemperatureCelsius  *float64 `json:"temperatureCelsius"`
	PrecipitationMm     *float64 `json:"precipitationMm"`
}

type metaPayload struct {
	DeviceID      *string `json:"deviceId"`
	CorrelationID *string `json:"correlationId"`
}

// readingResponse is one element of the GET /v1/sensor-readings result.
type readingResponse struct {
	ID            int64          `json:"id"`
	PropertyID    uuid.UUID      `json:"propertyId"`
	FieldID       uuid.UUID      `json:"fieldId"`
	Origin        string         `json:"origin"`
	CapturedAtUTC time.Time      `json:"capturedAtUtc"`
	Metrics       metricsPayload `json:"metrics"`
	Meta          *metaPayload   `json:"meta"`
}

func toReadingResponse(r *SensorReading) readingResponse {
	resp := readingResponse{
		ID:            r.ID,
		PropertyID:    r.PropertyID,
		FieldID:       r.FieldID,
		Origin:        r.Origin,
		CapturedAtUTC: r.CapturedAt.UTC(),
		Metrics: metricsPayload{
			SoilMoisturePercent: r.SoilMoisturePct,
			TemperatureCelsius:  r.TemperatureC,
			PrecipitationMm:     r.PrecipitationMm,
		},
	}
	if r.DeviceID != nil || r.CorrelationID != nil {
		resp.Meta = &metaPayload{
			DeviceID:      r.DeviceID,
			CorrelationID: r.CorrelationID,
		}
	}
	return resp
}

// validate checks field constraints and the at-least-one-metric
// invariant. Returns a client-facing message on failure.
func (req *createReadingRequest) validate() error {
	if req.PropertyID == uuid.Nil {
		return errors.New("propertyId is required")
	}
	if req.FieldID == uuid.Nil {
		return errors.New("fieldId is required")
	}
	if req.Origin == "" {
		return errors.New("origin is required")
	}
	if len(req.Origin) > 30 {
		return errors.New("origin must be at most 30 characters")
	}
	if req.CapturedAtUTC.IsZero() {
		return errors.New("capturedAtUtc is required")
	}
	if m := req.Metrics.SoilMoisturePercent; m != nil && (*m < 0 || *m > 100) {
		return errors.New("soilMoisturePercent must be between 0 and 100")
	}
	if t := req.Metrics.TemperatureCelsius; t != nil && (*t < -60 || *t > 80) {
		return errors.New("temperatureCelsius must be between -60 and 80")
	}
	if p := req.Metrics.PrecipitationMm; p != nil && (*p < 0 || *p > 1000) {
		return errors.New("precipitationMm must be between 0 and 1000")
	}
	if req.Metrics.SoilMoisturePercent == nil &&
		req.Metrics.TemperatureCelsius == nil &&
		req.Metrics.PrecipitationMm == nil {
		return errors.New("no metric supplied")
	}
	if req.Meta != nil {
		if req.Meta.DeviceID != nil && len(*req.Meta.DeviceID) > 50 {
			return errors.New("deviceId must be at most 50 characters")
		}
		if req.Meta.CorrelationID != nil && len(*req.Meta.CorrelationID) > 100 {
			return errors.New("correlationId must be at most 100 characters")
		}
	}
	return nil
}

// handleCreateReading persists a reading and publishes its event.
// Side-effect order matters: ownership gate first (nothing stored on
// denial), then insert, then publish. A publish failure after a
// successful insert surfaces as a server error; the reading stays
// stored.
func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.RequestDuration.WithLabelValues("create_reading"))
		defer timer.ObserveDuration()
	}

	token := r.Header.Get("Authorization")
	if token == "" {
		s.writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	var req createReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejected("bad_body")
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FieldID == uuid.Nil {
		s.rejected("validation")
		s.writeError(w, http.StatusBadRequest, "fieldId is required")
		return
	}

	if !s.gate.Owns(r.Context(), req.FieldID, token) {
		if s.metrics != nil {
			s.metrics.OwnershipDenied.Inc()
		}
		s.writeError(w, http.StatusForbidden, "you do not own this field")
		return
	}

	if err := req.validate(); err != nil {
		s.rejected("validation")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading := &SensorReading{
		PropertyID:      req.PropertyID,
		FieldID:         req.FieldID,
		Origin:          req.Origin,
		CapturedAt:      req.CapturedAtUTC.UTC(),
		SoilMoisturePct: req.Metrics.SoilMoisturePercent,
		TemperatureC:    req.Metrics.TemperatureCelsius,
		PrecipitationMm: req.Metrics.PrecipitationMm,
	}
	if req.Meta != nil {
		reading.DeviceID = req.Meta.DeviceID
		reading.CorrelationID = req.Meta.CorrelationID
	}

	id, err := s.store.Insert(r.Context(), reading)
	if err != nil {
		s.logger.Error("failed to insert reading", "field_id", req.FieldID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}
	if s.metrics != nil {
		s.metrics.ReadingsIngested.Inc()
	}

	s.logger.Info("reading received",
		"reading_id", id,
		"field_id", reading.FieldID,
		"captured_at", reading.CapturedAt,
		"origin", reading.Origin,
	)

	if err := s.publisher.PublishReadingReceived(r.Context(), reading); err != nil {
		// The reading is stored but unsignaled; the caller sees the
		// true outcome and may retry, accepting a duplicate.
		s.logger.Error("failed to publish reading event", "reading_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "reading stored but event publication failed")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleQueryReadings serves the range and bucketed-aggregation reads.
func (s *Server) handleQueryReadings(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.RequestDuration.WithLabelValues("query_readings"))
		defer timer.ObserveDuration()
	}

	q := r.URL.Query()

	fieldID, err := uuid.Parse(q.Get("fieldId"))
	if err != nil || fieldID == uuid.Nil {
		s.writeError(w, http.StatusBadRequest, "fieldId is required")
		return
	}

	from, err := time.Parse(time.RFC3339, q.Get("fromUtc"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "fromUtc must be a valid RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("toUtc"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "toUtc must be a valid RFC3339 timestamp")
		return
	}
	if !to.After(from) {
		s.writeError(w, http.StatusBadRequest, "invalid interval: toUtc must be after fromUtc")
		return
	}

	bucketMinutes := 0
	if raw := q.Get("bucketMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "bucketMinutes must be a positive integer")
			return
		}
		bucketMinutes = n
	}

	var readings []SensorReading
	if bucketMinutes > 0 {
		if s.metrics != nil {
			s.metrics.RangeQueries.WithLabelValues("bucketed").Inc()
		}
		readings, err = s.store.QueryBucketed(r.Context(), fieldID, from, to, bucketMinutes)
	} else {
		if s.metrics != nil {
			s.metrics.RangeQueries.WithLabelValues("raw").Inc()
		}
		readings, err = s.store.QueryRange(r.Context(), fieldID, from, to)
	}
	if err != nil {
		s.logger.Error("failed to query readings", "field_id", fieldID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}

	out := make([]readingResponse, len(readings))
	for i := range readings {
		out[i] = toReadingResponse(&readings[i])
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.RequestsRejected.WithLabelValues(reason).Inc()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
