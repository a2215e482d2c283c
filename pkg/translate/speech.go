package translate

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
)

// Transcriber converts recorded audio to text.
type Transcriber struct {
	client *openai.Client
	model  string
}

// NewTranscriber creates a Transcriber.
func NewTranscriber(apiKey string, opts ...Option) *Transcriber {
	cfg := resolve(DefaultTranscribeModel, opts)
	return &Transcriber{client: newClient(apiKey, cfg), model: cfg.model}
}

// Transcribe returns the text spoken in audio. The filename's extension
// tells the endpoint the container format (e.g. "clip.webm", "clip.wav").
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyInput
	}
	if filename == "" {
		filename = "audio.webm"
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: t.model,
		File:  openai.File(bytes.NewReader(audio), filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return resp.Text, nil
}

// Synthesizer converts text to spoken audio.
type Synthesizer struct {
	client *openai.Client
	model  string
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(apiKey string, opts ...Option) *Synthesizer {
	cfg := resolve(DefaultSpeechModel, opts)
	return &Synthesizer{client: newClient(apiKey, cfg), model: cfg.model}
}

// Synthesize renders text as MP3 audio in the given voice. An empty voice
// falls back to DefaultVoice.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if voice == "" {
		voice = DefaultVoice
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: s.model,
		Input: text,
		Voice: openai.AudioSpeechNewParamsVoice(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}
	return audio, nil
}
