package event_test

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/pkg/event"
)

var _ = Describe("ReadingReceived", func() {
	var reading *event.Reading

	BeforeEach(func() {
		moisture := 42.5
		device := "sensor-001"
		reading = &event.Reading{
			ID:            17,
			PropertyID:    uuid.New(),
			FieldID:       uuid.New(),
			Origin:        "sensor",
			CapturedAtUTC: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			Metrics: &event.Metrics{
				SoilMoisturePct: &moisture,
			},
			Meta: &event.Meta{
				DeviceID: &device,
			},
		}
	})

	Describe("NewReadingReceived", func() {
		It("should set the fixed event type", func() {
			env := event.NewReadingReceived(reading)
			Expect(env.EventType).To(Equal(event.TypeReadingReceived))
		})

		It("should assign a fresh event id", func() {
			first := event.NewReadingReceived(reading)
			second := event.NewReadingReceived(reading)
			Expect(first.EventID).NotTo(Equal(uuid.Nil))
			Expect(first.EventID).NotTo(Equal(second.EventID))
		})

		It("should stamp the occurrence time in UTC", func() {
			env := event.NewReadingReceived(reading)
			Expect(env.OccurredAtUTC.Location()).To(Equal(time.UTC))
			Expect(env.OccurredAtUTC).To(BeTemporally("~", time.Now().UTC(), time.Second))
		})

		It("should embed the full reading", func() {
			env := event.NewReadingReceived(reading)
			Expect(env.Reading).To(Equal(reading))
		})
	})

	Describe("wire format", func() {
		It("should use the established field names", func() {
			env := event.NewReadingReceived(reading)
			data, err := json.Marshal(env)
			Expect(err).NotTo(HaveOccurred())

			var raw map[string]json.RawMessage
			Expect(json.Unmarshal(data, &raw)).To(Succeed())
			Expect(raw).To(HaveKey("eventType"))
			Expect(raw).To(HaveKey("eventId"))
			Expect(raw).To(HaveKey("occurredAtUtc"))
			Expect(raw).To(HaveKey("leitura"))

			var payload map[string]json.RawMessage
			Expect(json.Unmarshal(raw["leitura"], &payload)).To(Succeed())
			Expect(payload).To(HaveKey("idPropriedade"))
			Expect(payload).To(HaveKey("idTalhao"))
			Expect(payload).To(HaveKey("origem"))
			Expect(payload).To(HaveKey("dataHoraCapturaUtc"))
			Expect(payload).To(HaveKey("metricas"))
		})

		It("should survive a round trip", func() {
			env := event.NewReadingReceived(reading)
			data, err := json.Marshal(env)
			Expect(err).NotTo(HaveOccurred())

			var decoded event.ReadingReceived
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.EventType).To(Equal(env.EventType))
			Expect(decoded.EventID).To(Equal(env.EventID))
			Expect(decoded.Reading).NotTo(BeNil())
			Expect(decoded.Reading.ID).To(Equal(reading.ID))
			Expect(decoded.Reading.FieldID).To(Equal(reading.FieldID))
			Expect(decoded.Reading.Metrics.SoilMoisturePct).To(HaveValue(BeNumerically("==", 42.5)))
		})

		It("should decode field names case-insensitively", func() {
			raw := `{
				"EVENTTYPE": "LeituraSensorRecebida",
				"Leitura": {
					"Id": 3,
					"IdTalhao": "` + reading.FieldID.String() + `",
					"Metricas": {"TemperaturaCelsius": 21.5}
				}
			}`

			var decoded event.ReadingReceived
			Expect(json.Unmarshal([]byte(raw), &decoded)).To(Succeed())
			Expect(decoded.EventType).To(Equal(event.TypeReadingReceived))
			Expect(decoded.Reading).NotTo(BeNil())
			Expect(decoded.Reading.ID).To(Equal(int64(3)))
			Expect(decoded.Reading.FieldID).To(Equal(reading.FieldID))
			Expect(decoded.Reading.Metrics.TemperatureC).To(HaveValue(BeNumerically("==", 21.5)))
		})

		It("should tolerate an absent payload", func() {
			var decoded event.ReadingReceived
			Expect(json.Unmarshal([]byte(`{"eventType":"LeituraSensorRecebida"}`), &decoded)).To(Succeed())
			Expect(decoded.Reading).To(BeNil())
		})
	})
})
