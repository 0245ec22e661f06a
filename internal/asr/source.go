package asr

import (
	"context"
	"time"
)

// NopAudioSource is the placeholder capture backend used when no real
// audio device integration is wired in. It waits out the window and
// yields no audio, so the worker idles without busy-looping.
type NopAudioSource struct{}

func (NopAudioSource) Record(ctx context.Context, _ int, window time.Duration) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(window):
		return nil, nil
	}
}
