// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     stt
// Description: Speech-to-Text recognizer interface
// License:     MIT
// ============================================================================

package stt

import (
	"context"
	"time"
)

// Recognizer is the pretrained speech model behind the processor
type Recognizer interface {
	// Name identifies the backend
	Name() string

	// Recognize transcribes 16 kHz mono samples
	Recognize(ctx context.Context, samples []float32, opts Options) ([]Segment, Info, error)

	// Close releases resources
	Close() error
}

// Options controls a single recognition call
type Options struct {
	// Language is the spoken language; empty asks the model to detect it
	Language string

	BeamSize    int
	BestOf      int
	Temperature float64

	// ConditionOnPreviousText feeds earlier output back as a prompt
	ConditionOnPreviousText bool

	// VADFilter drops non-speech before recognition
	VADFilter  bool
	MinSilence time.Duration
	MinSpeech  time.Duration
}

// Segment is a recognized span of speech
type Segment struct {
	Text  string
	Start float64
	End   float64

	// AvgLogprob is nil when the backend does not report token probabilities
	AvgLogprob *float64
}

// Info describes the whole recognition
type Info struct {
	Language string

	// LanguageProbability is nil when the language was given rather than detected
	LanguageProbability *float64

	Duration float64
}

func float64Ptr(v float64) *float64 {
	return &v
}
