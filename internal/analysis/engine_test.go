package analysis_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/internal/analysis"
)

func f64(v float64) *float64 { return &v }

// fakeHistory implements analysis.HistoryStore with a fixed window.
type fakeHistory struct {
	readings []analysis.Reading
	err      error
	calls    int
}

func (f *fakeHistory) RecentWindow(context.Context, uuid.UUID, time.Duration) ([]analysis.Reading, error) {
	f.calls++
	return f.readings, f.err
}

var _ = Describe("Engine", func() {
	var (
		logger  *slog.Logger
		history *fakeHistory
		engine  *analysis.Engine
		fieldID uuid.UUID
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		history = &fakeHistory{}
		var err error
		engine, err = analysis.NewEngine(history, logger)
		Expect(err).NotTo(HaveOccurred())
		fieldID = uuid.New()
	})

	newReading := func(temp, moisture *float64) *analysis.Reading {
		return &analysis.Reading{
			ID:              42,
			FieldID:         fieldID,
			CapturedAt:      time.Now().UTC(),
			TemperatureC:    temp,
			SoilMoisturePct: moisture,
		}
	}

	Describe("NewEngine", func() {
		It("should return error when the history store is nil", func() {
			e, err := analysis.NewEngine(nil, logger)
			Expect(err).To(HaveOccurred())
			Expect(e).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			e, err := analysis.NewEngine(history, nil)
			Expect(err).To(HaveOccurred())
			Expect(e).To(BeNil())
		})
	})

	Describe("temperature rules", func() {
		It("should raise a critical alert above 35°C", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(36), nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Severity).To(Equal(analysis.SeverityCritical))
			Expect(alerts[0].Message).To(Equal("Temperatura Crítica (> 35°C)"))
			Expect(alerts[0].FieldID).To(Equal(fieldID))
			Expect(alerts[0].ReadingID).To(HaveValue(Equal(int64(42))))
		})

		It("should raise a frost warning below 0°C", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(-2), nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Severity).To(Equal(analysis.SeverityWarning))
			Expect(alerts[0].Message).To(Equal("Risco de Geada (< 0°C)"))
		})

		It("should not alert at exactly 35°C", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(35), nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())
		})

		It("should not alert at exactly 0°C", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(0), nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())
		})

		It("should skip temperature rules when no temperature is present", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(50)))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())
		})
	})

	Describe("moisture rules", func() {
		It("should raise a critical alert below 20%", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(15)))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Severity).To(Equal(analysis.SeverityCritical))
			Expect(alerts[0].Message).To(Equal("Seca Extrema (Umidade < 20%)"))
		})

		It("should not alert at exactly 20% when the window is not sustained", func() {
			history.readings = []analysis.Reading{
				{FieldID: fieldID, SoilMoisturePct: f64(50)},
			}
			alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(20)))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())
		})

		Context("sustained drought", func() {
			It("should warn when every reading in the window is below 30%", func() {
				history.readings = []analysis.Reading{
					{FieldID: fieldID, SoilMoisturePct: f64(28)},
					{FieldID: fieldID, SoilMoisturePct: f64(25)},
				}
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(25)))
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(1))
				Expect(alerts[0].Severity).To(Equal(analysis.SeverityWarning))
				Expect(alerts[0].Message).To(Equal("Risco de Seca: Umidade abaixo de 30% por 24h"))
			})

			It("should not warn on an empty window", func() {
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(25)))
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should not warn when one reading in the window is above 30%", func() {
				history.readings = []analysis.Reading{
					{FieldID: fieldID, SoilMoisturePct: f64(28)},
					{FieldID: fieldID, SoilMoisturePct: f64(45)},
				}
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(25)))
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should not warn when a window reading has no moisture value", func() {
				history.readings = []analysis.Reading{
					{FieldID: fieldID, SoilMoisturePct: f64(28)},
					{FieldID: fieldID, SoilMoisturePct: nil},
				}
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(25)))
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should not consult the window at 30% or above", func() {
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(30)))
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
				Expect(history.calls).To(BeZero())
			})

			It("should fail the evaluation when the history query fails", func() {
				history.err = errors.New("connection refused")
				alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(25)))
				Expect(err).To(HaveOccurred())
				Expect(alerts).To(BeNil())
			})
		})

		It("should raise both moisture alerts below 20% in a sustained drought", func() {
			history.readings = []analysis.Reading{
				{FieldID: fieldID, SoilMoisturePct: f64(18)},
			}
			alerts, err := engine.Evaluate(context.Background(), newReading(nil, f64(15)))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(2))
		})
	})

	Describe("combined rules", func() {
		It("should raise independent temperature and moisture alerts", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(40), f64(15)))
			Expect(err).NotTo(HaveOccurred())

			messages := make([]string, len(alerts))
			for i := range alerts {
				messages[i] = alerts[i].Message
			}
			Expect(messages).To(ContainElement("Temperatura Crítica (> 35°C)"))
			Expect(messages).To(ContainElement("Seca Extrema (Umidade < 20%)"))
		})

		It("should return no alerts for a nominal reading", func() {
			alerts, err := engine.Evaluate(context.Background(), newReading(f64(22), f64(55)))
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())
		})

		It("should return error for a nil reading", func() {
			alerts, err := engine.Evaluate(context.Background(), nil)
			Expect(err).To(HaveOccurred())
			Expect(alerts).To(BeNil())
		})
	})
})
