package providers

import (
	"bytes"
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber implements asr.Transcriber over the OpenAI audio
// transcription API.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewWhisperTranscriber(apiKey, baseURL, language string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	lang := language
	if lang == "auto" {
		lang = ""
	}
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(cfg),
		model:    openai.Whisper1,
		language: lang,
	}, nil
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) (string, float64, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(audio),
		Language: t.language,
	})
	if err != nil {
		return "", 0, err
	}
	// The API reports no confidence; treat any returned text as fully
	// confident and let callers threshold on their own.
	return resp.Text, 1.0, nil
}
