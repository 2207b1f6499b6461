package simulator_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/internal/simulator"
)

var _ = Describe("FieldGenerator", func() {
	var gen *simulator.FieldGenerator

	BeforeEach(func() {
		profile := simulator.NewFieldProfile()
		Expect(profile).NotTo(BeNil())
		gen = simulator.NewFieldGenerator(*profile)
	})

	Describe("NewFieldProfile", func() {
		It("should fake a complete field identity", func() {
			profile := simulator.NewFieldProfile()
			Expect(profile).NotTo(BeNil())
			Expect(profile.PropertyID).NotTo(Equal(uuid.Nil))
			Expect(profile.FieldID).NotTo(Equal(uuid.Nil))
			Expect(profile.DeviceID).NotTo(BeEmpty())
			Expect(profile.Region).NotTo(BeEmpty())
		})

		It("should produce distinct fields", func() {
			a := simulator.NewFieldProfile()
			b := simulator.NewFieldProfile()
			Expect(a.FieldID).NotTo(Equal(b.FieldID))
		})
	})

	Describe("Reading", func() {
		It("should produce a complete submission body", func() {
			at := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
			reading := gen.Reading(at)

			Expect(reading.PropertyID).To(Equal(gen.Profile().PropertyID))
			Expect(reading.FieldID).To(Equal(gen.Profile().FieldID))
			Expect(reading.Origin).To(Equal("simulator"))
			Expect(reading.CapturedAtUTC).To(Equal(at))
			Expect(reading.Metrics.SoilMoisturePercent).NotTo(BeNil())
			Expect(reading.Metrics.TemperatureCelsius).NotTo(BeNil())
			Expect(reading.Metrics.PrecipitationMm).NotTo(BeNil())
			Expect(reading.Meta).NotTo(BeNil())
			Expect(reading.Meta.DeviceID).To(HaveValue(Equal(gen.Profile().DeviceID)))
			Expect(reading.Meta.CorrelationID).NotTo(BeNil())
		})

		It("should keep metrics inside the accepted ranges", func() {
			at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 500; i++ {
				reading := gen.Reading(at.Add(time.Duration(i) * time.Minute))
				Expect(*reading.Metrics.SoilMoisturePercent).To(And(
					BeNumerically(">=", 0), BeNumerically("<=", 100)))
				Expect(*reading.Metrics.TemperatureCelsius).To(And(
					BeNumerically(">=", -60), BeNumerically("<=", 80)))
				Expect(*reading.Metrics.PrecipitationMm).To(And(
					BeNumerically(">=", 0), BeNumerically("<=", 1000)))
			}
		})

		It("should use a fresh correlation id per reading", func() {
			at := time.Now().UTC()
			first := gen.Reading(at)
			second := gen.Reading(at)
			Expect(*first.Meta.CorrelationID).NotTo(Equal(*second.Meta.CorrelationID))
		})
	})
})

var _ = Describe("Server", func() {
	var (
		logger *slog.Logger
		cfg    *simulator.ServerConfig
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		cfg = &simulator.ServerConfig{
			Logger:     logger,
			APIURL:     "http://localhost:8080",
			Token:      "test-token",
			FieldCount: 3,
			Interval:   time.Second,
		}
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server", func() {
				server, err := simulator.NewServer(cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})
		})

		Context("running against a live endpoint", func() {
			It("should submit authorized readings until the context ends", func() {
				var (
					mu       sync.Mutex
					requests int
					lastAuth string
				)
				api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					mu.Lock()
					requests++
					lastAuth = r.Header.Get("Authorization")
					mu.Unlock()
					w.WriteHeader(http.StatusCreated)
				}))
				DeferCleanup(api.Close)

				cfg.APIURL = api.URL
				cfg.FieldCount = 2
				cfg.Interval = 10 * time.Millisecond
				server, err := simulator.NewServer(cfg)
				Expect(err).NotTo(HaveOccurred())

				ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer cancel()
				Expect(server.Run(ctx)).To(Succeed())

				mu.Lock()
				defer mu.Unlock()
				Expect(requests).To(BeNumerically(">", 0))
				Expect(lastAuth).To(Equal("Bearer test-token"))
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when config is nil", func() {
				server, err := simulator.NewServer(nil)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when the API URL is empty", func() {
				cfg.APIURL = ""
				server, err := simulator.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when the token is empty", func() {
				cfg.Token = ""
				server, err := simulator.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when the field count is not positive", func() {
				cfg.FieldCount = 0
				server, err := simulator.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})

			It("should return error when the interval is not positive", func() {
				cfg.Interval = 0
				server, err := simulator.NewServer(cfg)
				Expect(err).To(HaveOccurred())
				Expect(server).To(BeNil())
			})
		})
	})
})
