package tts

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/msto63/voicebridge/pkg/core/config"
)

// PiperEngine implements text-to-speech using Piper
type PiperEngine struct {
	binary       string
	model        string
	probeTimeout time.Duration
}

// NewPiperEngine creates a Piper engine
func NewPiperEngine(cfg config.PiperConfig, probeTimeout time.Duration) *PiperEngine {
	return &PiperEngine{binary: cfg.Binary, model: cfg.Model, probeTimeout: probeTimeout}
}

// Provider returns ProviderPiper
func (e *PiperEngine) Provider() Provider { return ProviderPiper }

// Probe runs piper --help
func (e *PiperEngine) Probe(ctx context.Context) error {
	return probeCommand(ctx, e.binary, "--help", e.probeTimeout)
}

// Synthesize pipes text to piper and writes a WAV file
func (e *PiperEngine) Synthesize(ctx context.Context, text, dir string) (string, string, error) {
	out := filepath.Join(dir, "speech.wav")
	args := []string{
		"--model", e.model,
		"--output_file", out,
	}
	if err := runCommand(ctx, "tts.piper", e.binary, args, text); err != nil {
		return "", "", err
	}
	return out, FormatWAV, nil
}

// ESpeakEngine implements text-to-speech using eSpeak
type ESpeakEngine struct {
	cfg          config.ESpeakConfig
	probeTimeout time.Duration
}

// NewESpeakEngine creates an eSpeak engine
func NewESpeakEngine(cfg config.ESpeakConfig, probeTimeout time.Duration) *ESpeakEngine {
	return &ESpeakEngine{cfg: cfg, probeTimeout: probeTimeout}
}

// Provider returns ProviderESpeak
func (e *ESpeakEngine) Provider() Provider { return ProviderESpeak }

// Probe runs espeak --version
func (e *ESpeakEngine) Probe(ctx context.Context) error {
	return probeCommand(ctx, e.cfg.Binary, "--version", e.probeTimeout)
}

// Synthesize writes a WAV file with espeak -w
func (e *ESpeakEngine) Synthesize(ctx context.Context, text, dir string) (string, string, error) {
	out := filepath.Join(dir, "speech.wav")
	args := []string{
		"-v", e.cfg.Voice,
		"-s", strconv.Itoa(e.cfg.Speed), // words per minute
		"-p", strconv.Itoa(e.cfg.Pitch),
		"-a", strconv.Itoa(e.cfg.Amplitude),
		"-w", out,
		text,
	}
	if err := runCommand(ctx, "tts.espeak", e.cfg.Binary, args, ""); err != nil {
		return "", "", err
	}
	return out, FormatWAV, nil
}

// SystemEngine implements text-to-speech using the macOS say command
type SystemEngine struct {
	cfg  config.SystemConfig
	goos string
}

// NewSystemEngine creates a say engine for the given platform
func NewSystemEngine(cfg config.SystemConfig, goos string) *SystemEngine {
	if goos == "" {
		goos = runtime.GOOS
	}
	return &SystemEngine{cfg: cfg, goos: goos}
}

// Provider returns ProviderSystem
func (e *SystemEngine) Provider() Provider { return ProviderSystem }

// Probe checks for macOS and say on PATH. say has no version flag.
func (e *SystemEngine) Probe(ctx context.Context) error {
	if e.goos != "darwin" {
		return fmt.Errorf("system TTS requires macOS, running on %s", e.goos)
	}
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("%s not found: %w", e.cfg.Binary, err)
	}
	return nil
}

// Synthesize writes an AIFF file with say
func (e *SystemEngine) Synthesize(ctx context.Context, text, dir string) (string, string, error) {
	out := filepath.Join(dir, "speech.aiff")
	args := []string{
		"-v", e.cfg.Voice,
		"-o", out,
		"--data-format=" + e.cfg.DataFormat,
		text,
	}
	if err := runCommand(ctx, "tts.system", e.cfg.Binary, args, ""); err != nil {
		return "", "", err
	}
	return out, FormatAIFF, nil
}
