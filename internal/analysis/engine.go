package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Alert rule thresholds.
const (
	criticalTempC      = 35.0
	frostTempC         = 0.0
	extremeDroughtPct  = 20.0
	droughtWarnPct     = 30.0
	droughtHistorySpan = 24 * time.Hour
)

// Fixed alert messages. The listing API returns them verbatim and the
// recent-alert suppression check matches on substrings of them, so the
// wording is load-bearing.
const (
	msgCriticalTemp   = "Temperatura Crítica (> 35°C)"
	msgFrostRisk      = "Risco de Geada (< 0°C)"
	msgExtremeDrought = "Seca Extrema (Umidade < 20%)"
	msgDroughtRisk    = "Risco de Seca: Umidade abaixo de 30% por 24h"
)

// HistoryStore is the engine's view of the analysis store: the recent
// readings of a field, used by the sustained-drought rule.
type HistoryStore interface {
	RecentWindow(ctx context.Context, fieldID uuid.UUID, window time.Duration) ([]Reading, error)
}

// Engine evaluates alert rules against each incoming reading. Rules are
// stateless except for the sustained-drought rule, which consults the
// field's 24-hour reading history.
type Engine struct {
	history HistoryStore
	logger  *slog.Logger
}

// NewEngine creates an alert engine.
func NewEngine(history HistoryStore, logger *slog.Logger) (*Engine, error) {
	if history == nil {
		return nil, errors.New("history store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Engine{history: history, logger: logger}, nil
}

// Evaluate runs every rule against the reading and returns the alerts
// it produced, possibly none. The two temperature rules are mutually
// exclusive; the two moisture rules are not. A history query failure
// fails the whole evaluation so the delivery can be retried or sunk.
func (e *Engine) Evaluate(ctx context.Context, reading *Reading) ([]Alert, error) {
	if reading == nil {
		return nil, errors.New("reading cannot be nil")
	}

	now := time.Now().UTC()
	var alerts []Alert

	emit := func(msg string, severity Severity) {
		alerts = append(alerts, Alert{
			FieldID:     reading.FieldID,
			Message:     msg,
			Severity:    severity,
			GeneratedAt: now,
			ReadingID:   &reading.ID,
		})
	}

	if t := reading.TemperatureC; t != nil {
		switch {
		case *t > criticalTempC:
			emit(msgCriticalTemp, SeverityCritical)
		case *t < frostTempC:
			emit(msgFrostRisk, SeverityWarning)
		}
	}

	if m := reading.SoilMoisturePct; m != nil {
		if *m < extremeDroughtPct {
			emit(msgExtremeDrought, SeverityCritical)
		}
		if *m < droughtWarnPct {
			sustained, err := e.droughtSustained(ctx, reading.FieldID)
			if err != nil {
				return nil, fmt.Errorf("drought history check failed: %w", err)
			}
			if sustained {
				emit(msgDroughtRisk, SeverityWarning)
			}
		}
	}

	return alerts, nil
}

// droughtSustained reports whether every moisture value captured in the
// last 24 hours sits below the drought threshold. An empty history or a
// reading without a moisture value breaks the streak: the rule only
// fires on uninterrupted evidence.
func (e *Engine) droughtSustained(ctx context.Context, fieldID uuid.UUID) (bool, error) {
	history, err := e.history.RecentWindow(ctx, fieldID, droughtHistorySpan)
	if err != nil {
		return false, err
	}
	if len(history) == 0 {
		return false, nil
	}
	for i := range history {
		m := history[i].SoilMoisturePct
		if m == nil || *m >= droughtWarnPct {
			return false, nil
		}
	}
	return true, nil
}
