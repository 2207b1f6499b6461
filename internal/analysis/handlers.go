package analysis

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListTop = 100
	maxListTop     = 1000
)

// readingResponse is one element of the GET /v1/readings result.
type readingResponse struct {
	ID              int64     `json:"id"`
	FieldID         uuid.UUID `json:"fieldId"`
	CapturedAtUTC   time.Time `json:"capturedAtUtc"`
	TemperatureC    *float64  `json:"temperatureCelsius"`
	SoilMoisturePct *float64  `json:"soilMoisturePercent"`
	PrecipitationMm *float64  `json:"precipitationMm"`
}

// alertResponse is one element of the GET /v1/alerts result.
type alertResponse struct {
	ID             int64     `json:"id"`
	FieldID        uuid.UUID `json:"fieldId"`
	Message        string    `json:"message"`
	Severity       Severity  `json:"severity"`
	GeneratedAtUTC time.Time `json:"generatedAtUtc"`
	ReadingID      *int64    `json:"readingId"`
}

// listParams parses the shared fieldId and top query parameters. A
// missing fieldId means no filter; top defaults to 100 and is capped.
func (s *Server) listParams(w http.ResponseWriter, r *http.Request) (*uuid.UUID, int, bool) {
	q := r.URL.Query()

	var fieldID *uuid.UUID
	if raw := q.Get("fieldId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			s.writeError(w, http.StatusBadRequest, "fieldId must be a valid UUID")
			return nil, 0, false
		}
		fieldID = &id
	}

	top := defaultListTop
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return nil, 0, false
		}
		if n > maxListTop {
			n = maxListTop
		}
		top = n
	}

	return fieldID, top, true
}

// handleListReadings serves the most recent analysis-side readings,
// newest capture first.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	fieldID, top, ok := s.listParams(w, r)
	if !ok {
		return
	}

	readings, err := s.store.ListReadings(r.Context(), fieldID, top)
	if err != nil {
		s.logger.Error("failed to list readings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list readings")
		return
	}

	out := make([]readingResponse, len(readings))
	for i := range readings {
		out[i] = readingResponse{
			ID:              readings[i].ID,
			FieldID:         readings[i].FieldID,
			CapturedAtUTC:   readings[i].CapturedAt.UTC(),
			TemperatureC:    readings[i].TemperatureC,
			SoilMoisturePct: readings[i].SoilMoisturePct,
			PrecipitationMm: readings[i].PrecipitationMm,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleListAlerts serves the most recent alerts, newest first.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	fieldID, top, ok := s.listParams(w, r)
	if !ok {
		return
	}

	alerts, err := s.store.ListAlerts(r.Context(), fieldID, top)
	if err != nil {
		s.logger.Error("failed to list alerts", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	out := make([]alertResponse, len(alerts))
	for i := range alerts {
		out[i] = alertResponse{
			ID:             alerts[i].ID,
			FieldID:        alerts[i].FieldID,
			Message:        alerts[i].Message,
			Severity:       alerts[i].Severity,
			GeneratedAtUTC: alerts[i].GeneratedAt.UTC(),
			ReadingID:      alerts[i].ReadingID,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
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
