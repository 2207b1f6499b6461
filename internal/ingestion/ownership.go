package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OwnershipGate authorizes that a caller owns the target field. It is
// an external decision service; the answer is an opaque boolean.
type OwnershipGate interface {
	// Owns reports whether the bearer of token owns fieldID.
	Owns(ctx context.Context, fieldID uuid.UUID, token string) bool
}

// PropertyGate calls the property service over HTTP with the caller's
// bearer token forwarded verbatim. Any response other than 2xx, and
// any transport error, counts as a denial (fail-closed).
type PropertyGate struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewPropertyGate creates a PropertyGate against the given base URL.
func NewPropertyGate(baseURL string, logger *slog.Logger) (*PropertyGate, error) {
	if baseURL == "" {
		return nil, errors.New("property service URL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &PropertyGate{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}, nil
}

// Owns implements OwnershipGate.
func (g *PropertyGate) Owns(ctx context.Context, fieldID uuid.UUID, token string) bool {
	url := fmt.Sprintf("%s/properties/fields/%s", g.baseURL, fieldID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		g.logger.Error("failed to build ownership request", "field_id", fieldID, "error", err)
		return false
	}

	bearer := strings.TrimSpace(token)
	if !strings.HasPrefix(strings.ToLower(bearer), "bearer ") {
		bearer = "Bearer " + bearer
	}
	req.Header.Set("Authorization", bearer)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("ownership check failed", "field_id", fieldID, "error", err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusForbidden:
		g.logger.Warn("ownership denied", "field_id", fieldID)
		return false
	case resp.StatusCode == http.StatusNotFound:
		g.logger.Warn("field not found", "field_id", fieldID)
		return false
	default:
		g.logger.Error("unexpected ownership response",
			"field_id", fieldID,
			"status", resp.StatusCode,
		)
		return false
	}
}
