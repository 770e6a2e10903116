// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     vad
// Description: Speech region filter built on WebRTC VAD
// License:     MIT
// ============================================================================

package vad

import (
	"fmt"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Config holds VAD configuration
type Config struct {
	// SampleRate is the audio sample rate (8000, 16000, 32000 or 48000)
	SampleRate int

	// Mode/Aggressiveness (0-3, higher = more aggressive filtering)
	Mode int

	// FrameDuration is the analysis frame length (10, 20 or 30 ms)
	FrameDuration time.Duration

	// MinSilence closes a speech region
	MinSilence time.Duration

	// MinSpeech is the shortest region that is kept
	MinSpeech time.Duration
}

// DefaultConfig returns default VAD configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Mode:          2, // Moderate aggressiveness
		FrameDuration: 30 * time.Millisecond,
		MinSilence:    500 * time.Millisecond,
		MinSpeech:     250 * time.Millisecond,
	}
}

// Region is a half-open sample range [Start, End) that contains speech
type Region struct {
	Start int
	End   int
}

// Filter keeps only the speech regions of a recording
type Filter struct {
	cfg        Config
	frameSize  int
	minSpeech  int
	minSilence int
}

// NewFilter creates a new WebRTC VAD filter
func NewFilter(cfg Config) (*Filter, error) {
	switch cfg.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("invalid sample rate %d, must be one of [8000 16000 32000 48000]", cfg.SampleRate)
	}
	switch cfg.FrameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
	default:
		return nil, fmt.Errorf("invalid frame duration %s, must be 10ms, 20ms or 30ms", cfg.FrameDuration)
	}
	if cfg.Mode < 0 || cfg.Mode > 3 {
		return nil, fmt.Errorf("mode must be between 0 and 3")
	}

	if _, err := newVAD(cfg.Mode); err != nil {
		return nil, err
	}

	frameSize := int(int64(cfg.SampleRate) * int64(cfg.FrameDuration) / int64(time.Second))

	return &Filter{
		cfg:        cfg,
		frameSize:  frameSize,
		minSpeech:  durationToFrames(cfg.MinSpeech, cfg.FrameDuration),
		minSilence: durationToFrames(cfg.MinSilence, cfg.FrameDuration),
	}, nil
}

// newVAD returns a fresh detector. The C state adapts to the noise floor
// frame by frame, so every Classify call gets its own instance.
func newVAD(mode int) (*webrtcvad.VAD, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set VAD mode: %w", err)
	}
	return v, nil
}

func durationToFrames(d, frame time.Duration) int {
	n := int((d + frame - 1) / frame)
	if n < 1 {
		n = 1
	}
	return n
}

// Classify returns the per-frame speech decision. A trailing partial frame is dropped.
func (f *Filter) Classify(samples []float32) ([]bool, error) {
	v, err := newVAD(f.cfg.Mode)
	if err != nil {
		return nil, err
	}

	n := len(samples) / f.frameSize
	flags := make([]bool, n)
	buf := make([]byte, f.frameSize*2)

	for i := 0; i < n; i++ {
		frame := samples[i*f.frameSize : (i+1)*f.frameSize]
		for j, s := range frame {
			v := int16(clamp(s) * 32767)
			buf[j*2] = byte(v)
			buf[j*2+1] = byte(v >> 8)
		}

		active, err := v.Process(f.cfg.SampleRate, buf)
		if err != nil {
			return nil, fmt.Errorf("VAD processing failed: %w", err)
		}
		flags[i] = active
	}
	return flags, nil
}

// SpeechRegions returns the speech regions found in samples
func (f *Filter) SpeechRegions(samples []float32) ([]Region, error) {
	flags, err := f.Classify(samples)
	if err != nil {
		return nil, err
	}
	return regionsFromFrames(flags, f.frameSize, f.minSpeech, f.minSilence), nil
}

// Apply returns the concatenated speech regions. The result is empty when no speech is found.
func (f *Filter) Apply(samples []float32) ([]float32, error) {
	regions, err := f.SpeechRegions(samples)
	if err != nil {
		return nil, err
	}

	var out []float32
	for _, r := range regions {
		end := r.End
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, samples[r.Start:end]...)
	}
	return out, nil
}

// Close releases resources
func (f *Filter) Close() error {
	// WebRTC VAD doesn't require explicit cleanup
	return nil
}

// regionsFromFrames groups voiced frames into regions. A region ends once
// minSilence unvoiced frames follow it and is kept if it spans minSpeech frames.
func regionsFromFrames(flags []bool, frameSize, minSpeech, minSilence int) []Region {
	var regions []Region
	start, lastVoiced := -1, -1

	closeRegion := func() {
		if start >= 0 && lastVoiced-start+1 >= minSpeech {
			regions = append(regions, Region{Start: start * frameSize, End: (lastVoiced + 1) * frameSize})
		}
		start, lastVoiced = -1, -1
	}

	for i, voiced := range flags {
		if voiced {
			if start < 0 {
				start = i
			}
			lastVoiced = i
			continue
		}
		if start >= 0 && i-lastVoiced >= minSilence {
			closeRegion()
		}
	}
	closeRegion()

	return regions
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
