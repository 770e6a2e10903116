// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     tts
// Description: Text-to-Speech types and provider fallback order
// License:     MIT
// ============================================================================

package tts

import (
	"context"
	"fmt"
)

// Provider names a text-to-speech engine
type Provider string

const (
	ProviderPiper  Provider = "piper"
	ProviderESpeak Provider = "espeak"
	ProviderSystem Provider = "system"
)

// Audio settings shared by every provider
const (
	SampleRate = 22050
	Channels   = 1
	BitDepth   = 16
)

// Output formats
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatAIFF = "aiff"
)

// SupportedFormats lists the formats a caller may request
var SupportedFormats = []string{FormatWAV, FormatMP3}

// fallbackChain is the order in which providers are tried
var fallbackChain = []Provider{ProviderPiper, ProviderESpeak, ProviderSystem}

// ParseProvider validates a provider name
func ParseProvider(name string) (Provider, error) {
	for _, p := range fallbackChain {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported TTS provider: %s", name)
}

// Engine is an external text-to-speech program
type Engine interface {
	// Provider returns the provider this engine implements
	Provider() Provider

	// Probe checks that the engine can run
	Probe(ctx context.Context) error

	// Synthesize writes speech for text into dir and returns the file path and its container format
	Synthesize(ctx context.Context, text, dir string) (string, string, error)
}

// Result holds the outcome of a synthesis request
type Result struct {
	Audio                  []byte  `json:"audio,omitempty"`
	Text                   string  `json:"text"`
	Duration               float64 `json:"duration"`
	EstimatedAudioDuration float64 `json:"estimated_audio_duration,omitempty"`
	SampleRate             int     `json:"sample_rate,omitempty"`
	Channels               int     `json:"channels,omitempty"`
	Format                 string  `json:"format,omitempty"`
	Provider               string  `json:"provider"`
	Voice                  string  `json:"voice,omitempty"`
	TextLength             int     `json:"text_length,omitempty"`
	WordCount              int     `json:"word_count,omitempty"`
	Cached                 bool    `json:"cached,omitempty"`
	Error                  string  `json:"error,omitempty"`
}

// Status describes the processor configuration and engine availability
type Status struct {
	Available        bool            `json:"available"`
	Provider         string          `json:"provider"`
	Voice            string          `json:"voice"`
	Device           string          `json:"device"`
	SampleRate       int             `json:"sample_rate"`
	Channels         int             `json:"channels"`
	SupportedFormats []string        `json:"supported_formats"`
	Version          string          `json:"version"`
	Providers        map[string]bool `json:"providers"`
	FFmpeg           bool            `json:"ffmpeg"`
}
