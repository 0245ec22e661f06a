package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bbureau12/echonet/internal/domain"
)

// Forwarder delivers routed events to a target's listen endpoint.
// Delivery is best-effort: one attempt, a short fixed timeout, and every
// failure is reported as false rather than an error.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

func NewForwarder(timeout time.Duration, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Forward posts payload to listenURL. Success means a 2xx response.
func (f *Forwarder) Forward(ctx context.Context, listenURL string, payload domain.OutboundEvent) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("forward encode failed",
			slog.String("source_id", payload.SourceID), slog.Any("error", err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL, bytes.NewReader(body))
	if err != nil {
		f.logger.Warn("forward request build failed",
			slog.String("url", listenURL), slog.Any("error", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("forward failed",
			slog.String("source_id", payload.SourceID),
			slog.String("url", listenURL),
			slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("forward rejected",
			slog.String("source_id", payload.SourceID),
			slog.String("url", listenURL),
			slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}

// NewEventID mints an outbound event id.
func NewEventID() string {
	return "en-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
