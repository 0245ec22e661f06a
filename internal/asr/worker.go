// Package asr runs the background capture/transcribe loop. Audio capture
// and speech-to-text are external collaborators consumed through the
// AudioSource and Transcriber interfaces; the worker only decides when to
// record and feeds non-empty transcripts into the routing engine.
package asr

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bbureau12/echonet/internal/domain"
	"github.com/bbureau12/echonet/internal/service"
)

// AudioSource yields one discrete utterance per call, recorded from the
// given device for roughly the given window.
type AudioSource interface {
	Record(ctx context.Context, deviceIndex int, window time.Duration) ([]byte, error)
}

// Transcriber maps an utterance to text plus a 0..1 confidence.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (text string, confidence float64, err error)
}

type Worker struct {
	router      *service.Router
	state       *service.StateService
	source      AudioSource
	transcriber Transcriber
	logger      *slog.Logger

	sourceID string
	room     string
}

func NewWorker(router *service.Router, state *service.StateService, source AudioSource, transcriber Transcriber, sourceID, room string, logger *slog.Logger) *Worker {
	return &Worker{
		router:      router,
		state:       state,
		source:      source,
		transcriber: transcriber,
		logger:      logger,
		sourceID:    sourceID,
		room:        room,
	}
}

// Run polls the listen mode and records while it is not inactive. The
// loop exits when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		mode, err := w.state.ListenMode(ctx)
		if err != nil {
			w.logger.Error("read listen mode", slog.Any("error", err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}
		if mode == domain.ListenInactive {
			if !sleep(ctx, 200*time.Millisecond) {
				return nil
			}
			continue
		}

		if err := w.captureOnce(ctx); err != nil {
			w.logger.Warn("capture cycle failed", slog.Any("error", err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if !sleep(ctx, 50*time.Millisecond) {
			return nil
		}
	}
}

func (w *Worker) captureOnce(ctx context.Context) error {
	device, err := w.state.AudioDeviceIndex(ctx)
	if err != nil {
		return err
	}
	window, err := w.recordWindow(ctx)
	if err != nil {
		return err
	}

	audio, err := w.source.Record(ctx, device, window)
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return nil
	}

	text, confidence, err := w.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ev := domain.TextEvent{
		SourceID:   w.sourceID,
		Room:       w.room,
		TS:         time.Now().Unix(),
		Text:       text,
		Confidence: &confidence,
	}
	decision, err := w.router.Route(ctx, ev)
	if err != nil {
		return err
	}
	w.logger.Debug("worker routed transcript",
		slog.String("mode", decision.Mode),
		slog.String("routed_to", decision.RoutedTo))
	return nil
}

func (w *Worker) recordWindow(ctx context.Context) (time.Duration, error) {
	cfg, err := w.state.GetConfig(ctx, "record_window_seconds")
	if err != nil {
		return 3 * time.Second, nil
	}
	seconds, err := strconv.ParseFloat(cfg.Value, 64)
	if err != nil || seconds <= 0 {
		return 3 * time.Second, nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
