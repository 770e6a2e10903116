// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     stt
// Description: Whisper recognizer using the whisper.cpp CLI
// License:     MIT
// ============================================================================

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/msto63/voicebridge/internal/audio"
	"github.com/msto63/voicebridge/pkg/core/apperror"
)

// WhisperCLIConfig holds whisper.cpp CLI settings
type WhisperCLIConfig struct {
	Binary    string
	ModelPath string
	Threads   int
	UseGPU    bool
	TempDir   string
}

// WhisperCLI implements speech recognition using the whisper.cpp CLI
type WhisperCLI struct {
	cfg WhisperCLIConfig
}

// ModelPath returns the ggml model file for a model size inside dir
func ModelPath(dir, size string) string {
	return filepath.Join(dir, "ggml-"+size+".bin")
}

// NewWhisperCLI creates a new whisper.cpp recognizer
func NewWhisperCLI(cfg WhisperCLIConfig) (*WhisperCLI, error) {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	if _, err := exec.LookPath(cfg.Binary); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeServiceUnavailable, "stt.NewWhisperCLI", "whisper binary not found")
	}
	if cfg.ModelPath == "" {
		return nil, apperror.New(apperror.CodeConfig, "stt.NewWhisperCLI", "model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, apperror.Newf(apperror.CodeConfig, "stt.NewWhisperCLI", "model file not found: %s", cfg.ModelPath)
	}
	return &WhisperCLI{cfg: cfg}, nil
}

// Name returns the backend name
func (w *WhisperCLI) Name() string {
	return "whisper-cli"
}

// Recognize writes samples to a temp WAV file and runs whisper-cli with full JSON output
func (w *WhisperCLI) Recognize(ctx context.Context, samples []float32, opts Options) ([]Segment, Info, error) {
	dir, err := os.MkdirTemp(w.cfg.TempDir, "voicebridge-whisper-")
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(wavPath, audio.EncodeWAV(samples, TargetSampleRate), 0600); err != nil {
		return nil, Info{}, fmt.Errorf("failed to write WAV file: %w", err)
	}

	prefix := filepath.Join(dir, "result")
	args := w.buildArgs(wavPath, prefix, opts)

	cmd := exec.CommandContext(ctx, w.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Info{}, apperror.Wrap(err, apperror.CodeTimeout, "stt.whisper", "whisper timed out")
		}
		return nil, Info{}, apperror.Newf(apperror.CodeExternalService, "stt.whisper",
			"whisper failed: %v, stderr: %s", err, tail(stderr.String(), 2000))
	}

	data, err := os.ReadFile(prefix + ".json")
	if err != nil {
		return nil, Info{}, apperror.Wrap(err, apperror.CodeExternalService, "stt.whisper", "whisper produced no output")
	}

	segments, lang, err := parseWhisperJSON(data)
	if err != nil {
		return nil, Info{}, apperror.Wrap(err, apperror.CodeExternalService, "stt.whisper", "invalid whisper output")
	}

	info := Info{
		Language: lang,
		Duration: audio.Duration(samples, TargetSampleRate),
	}
	if opts.Language == "" {
		if detected, p, ok := parseDetectedLanguage(stderr.String()); ok {
			info.LanguageProbability = float64Ptr(p)
			if info.Language == "" {
				info.Language = detected
			}
		}
	} else if info.Language == "" {
		info.Language = opts.Language
	}

	return segments, info, nil
}

func (w *WhisperCLI) buildArgs(wavPath, prefix string, opts Options) []string {
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", wavPath,
		"-l", lang,
		"-bs", strconv.Itoa(opts.BeamSize),
		"-bo", strconv.Itoa(opts.BestOf),
		"-tp", strconv.FormatFloat(opts.Temperature, 'f', -1, 64),
	}
	if w.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.cfg.Threads))
	}
	if !opts.ConditionOnPreviousText {
		args = append(args, "-mc", "0")
	}
	if !w.cfg.UseGPU {
		args = append(args, "-ng")
	}
	return append(args, "-ojf", "-of", prefix)
}

// Close releases resources
func (w *WhisperCLI) Close() error {
	return nil
}

// whisperOutput is the subset of whisper.cpp's --output-json-full format we read
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string `json:"text"`
		Tokens []struct {
			Text string  `json:"text"`
			P    float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

func parseWhisperJSON(data []byte) ([]Segment, string, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, "", err
	}

	segments := make([]Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		seg := Segment{
			Text:  t.Text,
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
		}

		var sum float64
		var n int
		for _, tok := range t.Tokens {
			if strings.HasPrefix(tok.Text, "[_") {
				continue
			}
			p := tok.P
			if p <= 0 {
				p = 1e-10
			}
			sum += math.Log(p)
			n++
		}
		if n > 0 {
			seg.AvgLogprob = float64Ptr(sum / float64(n))
		}

		segments = append(segments, seg)
	}

	return segments, out.Result.Language, nil
}

var detectedLanguageRe = regexp.MustCompile(`auto-detected language: (\S+) \(p = ([0-9.]+)\)`)

func parseDetectedLanguage(stderr string) (string, float64, bool) {
	m := detectedLanguageRe.FindStringSubmatch(stderr)
	if m == nil {
		return "", 0, false
	}
	p, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], p, true
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
