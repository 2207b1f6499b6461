// Package simulator generates synthetic sensor readings and submits
// them to the ingestion API, exercising the whole pipeline end to end.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// FieldProfile describes one simulated field and its sensor device.
type FieldProfile struct {
	PropertyID uuid.UUID
	FieldID    uuid.UUID
	DeviceID   string `fake:"{uuid}"`
	Region     string `fake:"{city}, {state}"`
}

// FieldGenerator produces correlated readings for one field: a daily
// temperature cycle, moisture that drains between rains, and occasional
// extremes so the alert rules have something to fire on.
type FieldGenerator struct {
	profile          FieldProfile
	baselineTemp     float64
	baselineMoisture float64
	moisture         float64
	noise            float64
}

// NewFieldProfile fakes a field identity.
func NewFieldProfile() *FieldProfile {
	var profile FieldProfile
	if err := gofakeit.Struct(&profile); err != nil {
		return nil
	}
	profile.PropertyID = uuid.New()
	profile.FieldID = uuid.New()
	return &profile
}

// NewFieldGenerator creates a generator seeded with a random climate.
func NewFieldGenerator(profile FieldProfile) *FieldGenerator {
	baselineMoisture := 35.0 + rand.Float64()*30 // 35-65%
	return &FieldGenerator{
		profile:          profile,
		baselineTemp:     18.0 + rand.Float64()*12, // 18-30°C
		baselineMoisture: baselineMoisture,
		moisture:         baselineMoisture,
		noise:            rand.Float64() * 2,
	}
}

// Profile returns the field identity.
func (g *FieldGenerator) Profile() FieldProfile {
	return g.profile
}

// Temperature follows a daily cycle peaking mid-afternoon, with noise
// and a 5% chance of a spike large enough to cross an alert threshold.
func (g *FieldGenerator) Temperature(t time.Time) float64 {
	hour := float64(t.Hour())
	dailyCycle := 6 * math.Sin((hour-6)*math.Pi/12)
	noise := (rand.Float64() - 0.5) * g.noise

	anomaly := 0.0
	if rand.Float64() < 0.05 {
		anomaly = (rand.Float64() - 0.5) * 30
	}

	temp := g.baselineTemp + dailyCycle + noise + anomaly
	return math.Round(math.Max(-60, math.Min(80, temp))*100) / 100
}

// Precipitation is zero most of the time with occasional showers.
func (g *FieldGenerator) Precipitation() float64 {
	if rand.Float64() >= 0.1 {
		return 0
	}
	return math.Round(rand.Float64()*15*100) / 100
}

// Moisture is a random walk: it drains slowly, jumps after rain, and
// drifts back toward the field baseline.
func (g *FieldGenerator) Moisture(precipitation float64) float64 {
	g.moisture -= rand.Float64() * 1.5
	g.moisture += precipitation * 1.2
	g.moisture += (g.baselineMoisture - g.moisture) * 0.05
	g.moisture = math.Max(0, math.Min(100, g.moisture))
	return math.Round(g.moisture*100) / 100
}

// Reading assembles the next reading for the field at time t.
func (g *FieldGenerator) Reading(t time.Time) *SensorReading {
	precipitation := g.Precipitation()
	moisture := g.Moisture(precipitation)
	temperature := g.Temperature(t)
	correlationID := uuid.NewString()

	return &SensorReading{
		PropertyID:    g.profile.PropertyID,
		FieldID:       g.profile.FieldID,
		Origin:        "simulator",
		CapturedAtUTC: t.UTC(),
		Metrics: ReadingMetrics{
			SoilMoisturePercent: &moisture,
			TemperatureCelsius:  &temperature,
			PrecipitationMm:     &precipitation,
		},
		Meta: &ReadingMeta{
			DeviceID:      &g.profile.DeviceID,
			CorrelationID: &correlationID,
		},
	}
}
