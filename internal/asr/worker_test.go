package asr

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bbureau12/echonet/internal/repository"
	"github.com/bbureau12/echonet/internal/service"
	"github.com/bbureau12/echonet/internal/storage"
)

type fakeSource struct {
	calls atomic.Int64
	audio []byte
}

func (f *fakeSource) Record(ctx context.Context, _ int, _ time.Duration) ([]byte, error) {
	f.calls.Add(1)
	return f.audio, nil
}

type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte) (string, float64, error) {
	return f.text, 0.8, nil
}

func newWorkerFixture(t *testing.T, source AudioSource, tr Transcriber) (*Worker, *service.StateService) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "echonet.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := storage.Migrate(context.Background(), db, logger); err != nil {
		t.Fatal(err)
	}

	targets := repository.NewTargetRepository(db)
	state := service.NewStateService(repository.NewSettingRepository(db))
	sessions := service.NewSessionManager(25 * time.Second)
	matcher := service.NewMatcher(nil, true)
	forwarder := service.NewForwarder(time.Second, logger)
	router := service.NewRouter(targets, sessions, matcher, forwarder, logger)

	return NewWorker(router, state, source, tr, "mic-test", "", logger), state
}

func TestWorker_InactiveModeSkipsCapture(t *testing.T) {
	source := &fakeSource{}
	worker, state := newWorkerFixture(t, source, &fakeTranscriber{})

	ctx := context.Background()
	if err := state.SetListenMode(ctx, "inactive", "test", ""); err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := worker.Run(runCtx); err != nil {
		t.Fatal(err)
	}

	if source.calls.Load() != 0 {
		t.Errorf("inactive mode must not record, got %d captures", source.calls.Load())
	}
}

func TestWorker_CaptureOnceRoutesTranscript(t *testing.T) {
	source := &fakeSource{audio: []byte{1, 2, 3}}
	worker, _ := newWorkerFixture(t, source, &fakeTranscriber{text: "hello world"})

	if err := worker.captureOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if source.calls.Load() != 1 {
		t.Errorf("expected one capture, got %d", source.calls.Load())
	}
}

func TestWorker_EmptyTranscriptIgnored(t *testing.T) {
	source := &fakeSource{audio: []byte{1}}
	worker, _ := newWorkerFixture(t, source, &fakeTranscriber{text: "   "})

	if err := worker.captureOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
}
