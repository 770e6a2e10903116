// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     stt
// Description: Recognizer backed by an OpenAI compatible transcription API
// License:     MIT
// ============================================================================

package stt

import (
	"bytes"
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/msto63/voicebridge/internal/audio"
	"github.com/msto63/voicebridge/pkg/core/apperror"
)

// OpenAIConfig holds settings for an OpenAI-compatible transcription endpoint
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIRecognizer calls an OpenAI-compatible /audio/transcriptions endpoint,
// such as a local whisper server or the hosted API
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
}

// NewOpenAIRecognizer creates a recognizer for the given endpoint
func NewOpenAIRecognizer(cfg OpenAIConfig) *OpenAIRecognizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Name returns the backend name
func (o *OpenAIRecognizer) Name() string {
	return "openai"
}

// Recognize uploads the samples as WAV and requests verbose JSON, which carries
// per-segment average log-probabilities
func (o *OpenAIRecognizer) Recognize(ctx context.Context, samples []float32, opts Options) ([]Segment, Info, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       o.model,
		FilePath:    "audio.wav",
		Reader:      bytes.NewReader(audio.EncodeWAV(samples, TargetSampleRate)),
		Temperature: float32(opts.Temperature),
		Language:    opts.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Info{}, apperror.Wrap(err, apperror.CodeTimeout, "stt.openai", "transcription timed out")
		}
		return nil, Info{}, apperror.Wrap(err, apperror.CodeExternalService, "stt.openai", "transcription request failed")
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{
			Text:       s.Text,
			Start:      s.Start,
			End:        s.End,
			AvgLogprob: float64Ptr(s.AvgLogprob),
		})
	}
	if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		segments = append(segments, Segment{Text: resp.Text, End: resp.Duration})
	}

	info := Info{
		Language: NormalizeLanguage(resp.Language),
		Duration: resp.Duration,
	}
	if info.Language == "" {
		info.Language = opts.Language
	}

	return segments, info, nil
}

// Close releases resources
func (o *OpenAIRecognizer) Close() error {
	return nil
}
