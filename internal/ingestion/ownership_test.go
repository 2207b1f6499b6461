package ingestion_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrosolutions.dev/sensor-pipeline/internal/ingestion"
)

var _ = Describe("PropertyGate", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewPropertyGate", func() {
		It("should return error when the URL is empty", func() {
			gate, err := ingestion.NewPropertyGate("", logger)
			Expect(err).To(HaveOccurred())
			Expect(gate).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			gate, err := ingestion.NewPropertyGate("http://localhost:8081", nil)
			Expect(err).To(HaveOccurred())
			Expect(gate).To(BeNil())
		})
	})

	Describe("Owns", func() {
		var (
			fieldID    uuid.UUID
			gotPath    string
			gotAuth    string
			statusCode int
		)

		newGate := func() *ingestion.PropertyGate {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(statusCode)
			}))
			DeferCleanup(server.Close)

			gate, err := ingestion.NewPropertyGate(server.URL, logger)
			Expect(err).NotTo(HaveOccurred())
			return gate
		}

		BeforeEach(func() {
			fieldID = uuid.New()
			gotPath = ""
			gotAuth = ""
			statusCode = http.StatusOK
		})

		It("should allow on a 2xx response", func() {
			gate := newGate()
			Expect(gate.Owns(context.Background(), fieldID, "Bearer token-1")).To(BeTrue())
			Expect(gotPath).To(Equal("/properties/fields/" + fieldID.String()))
		})

		It("should forward the bearer token verbatim", func() {
			gate := newGate()
			gate.Owns(context.Background(), fieldID, "Bearer token-1")
			Expect(gotAuth).To(Equal("Bearer token-1"))
		})

		It("should add the Bearer prefix when missing", func() {
			gate := newGate()
			gate.Owns(context.Background(), fieldID, "token-1")
			Expect(gotAuth).To(Equal("Bearer token-1"))
		})

		It("should deny on 403", func() {
			statusCode = http.StatusForbidden
			gate := newGate()
			Expect(gate.Owns(context.Background(), fieldID, "token")).To(BeFalse())
		})

		It("should deny on 404", func() {
			statusCode = http.StatusNotFound
			gate := newGate()
			Expect(gate.Owns(context.Background(), fieldID, "token")).To(BeFalse())
		})

		It("should deny on an unexpected status", func() {
			statusCode = http.StatusInternalServerError
			gate := newGate()
			Expect(gate.Owns(context.Background(), fieldID, "token")).To(BeFalse())
		})

		It("should deny when the property service is unreachable", func() {
			gate, err := ingestion.NewPropertyGate("http://127.0.0.1:1", logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(gate.Owns(context.Background(), fieldID, "token")).To(BeFalse())
		})
	})
})
