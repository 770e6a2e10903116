// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     stt
// Description: Transcription and language detection pipeline
// License:     MIT
// ============================================================================

package stt

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/msto63/voicebridge/internal/audio"
	"github.com/msto63/voicebridge/pkg/core/apperror"
	"github.com/msto63/voicebridge/pkg/core/config"
	"github.com/msto63/voicebridge/pkg/core/logging"
	"github.com/msto63/voicebridge/pkg/core/version"
)

// Audio settings
const (
	TargetSampleRate = 16000
	MinBufferSize    = 1024
)

// ModelSizes lists the accepted whisper model sizes
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

// SpeechFilter drops non-speech from a recording
type SpeechFilter interface {
	Apply(samples []float32) ([]float32, error)
}

// LanguageScore is one entry of a detection ranking
type LanguageScore struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult holds the outcome of language detection
type DetectionResult struct {
	DetectedLanguage   string          `json:"detected_language"`
	LanguageConfidence float64         `json:"language_confidence"`
	AllLanguages       []LanguageScore `json:"all_languages"`
	SupportedLanguages []string        `json:"supported_languages"`
	DetectionDuration  float64         `json:"detection_duration"`
	AudioDuration      float64         `json:"audio_duration,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// SegmentResult is a transcribed segment with its confidence
type SegmentResult struct {
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// TranscriptionResult holds the outcome of a transcription
type TranscriptionResult struct {
	Text                        string          `json:"text"`
	Language                    string          `json:"language"`
	Confidence                  float64         `json:"confidence"`
	QualityScore                float64         `json:"quality_score"`
	Duration                    float64         `json:"duration"`
	AudioDuration               float64         `json:"audio_duration,omitempty"`
	DetectedLanguageProbability float64         `json:"detected_language_probability,omitempty"`
	ModelUsed                   string          `json:"model_used"`
	SegmentsCount               int             `json:"segments_count"`
	Segments                    []SegmentResult `json:"segments,omitempty"`
	Error                       string          `json:"error,omitempty"`
}

// Status describes the processor configuration
type Status struct {
	Available                bool              `json:"available"`
	Backend                  string            `json:"backend"`
	ModelSize                string            `json:"model_size"`
	DefaultLanguage          string            `json:"default_language"`
	SupportedLanguages       []string          `json:"supported_languages"`
	LanguageNames            map[string]string `json:"language_names"`
	Device                   string            `json:"device"`
	ComputeType              string            `json:"compute_type"`
	CUDAAvailable            bool              `json:"cuda_available"`
	TargetSampleRate         int               `json:"target_sample_rate"`
	LanguageDetectionEnabled bool              `json:"language_detection_enabled"`
	VADEnabled               bool              `json:"vad_enabled"`
	Version                  string            `json:"version"`
}

// Processor prepares audio and delegates recognition to a Recognizer
type Processor struct {
	cfg           config.STTConfig
	recognizer    Recognizer
	filter        SpeechFilter
	ffmpeg        *audio.FFmpeg
	logger        *logging.Logger
	tempDir       string
	probe         DeviceProbe
	device        string
	computeType   string
	cudaAvailable bool
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithRecognizer sets the recognizer instead of building one from the backend setting
func WithRecognizer(r Recognizer) Option {
	return func(p *Processor) { p.recognizer = r }
}

// WithSpeechFilter enables in-process voice activity filtering
func WithSpeechFilter(f SpeechFilter) Option {
	return func(p *Processor) { p.filter = f }
}

// WithFFmpeg sets the decoder used for non-WAV input
func WithFFmpeg(f *audio.FFmpeg) Option {
	return func(p *Processor) { p.ffmpeg = f }
}

// WithTempDir sets the directory for temporary audio files
func WithTempDir(dir string) Option {
	return func(p *Processor) { p.tempDir = dir }
}

// WithDeviceProbe replaces the CUDA availability check
func WithDeviceProbe(probe DeviceProbe) Option {
	return func(p *Processor) { p.probe = probe }
}

// NewProcessor resolves the device and builds the recognizer
func NewProcessor(ctx context.Context, cfg config.STTConfig, opts ...Option) (*Processor, error) {
	if !validModelSize(cfg.ModelSize) {
		return nil, apperror.Newf(apperror.CodeConfig, "stt.NewProcessor", "unsupported model size: %s", cfg.ModelSize)
	}
	cfg.Language = NormalizeLanguage(cfg.Language)
	if !IsSupported(cfg.Language) {
		return nil, apperror.Newf(apperror.CodeConfig, "stt.NewProcessor", "unsupported language: %s", cfg.Language)
	}

	p := &Processor{
		cfg:    cfg,
		ffmpeg: audio.NewFFmpeg("ffmpeg", time.Minute),
		logger: logging.New("stt"),
		probe:  nvidiaSMIProbe,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.Device == "" || cfg.Device == "auto" || cfg.Device == "cuda" {
		p.cudaAvailable = p.probe(ctx)
	}
	p.device, p.computeType = resolveDevice(cfg.Device, p.cudaAvailable)

	p.logger.Info("Initializing STT",
		"backend", cfg.Backend,
		"model", cfg.ModelSize,
		"language", cfg.Language,
		"device", p.device,
		"compute_type", p.computeType)

	if p.recognizer == nil {
		r, err := p.newRecognizer()
		if err != nil {
			p.logger.Error("Failed to initialize recognizer", "error", err)
			return nil, err
		}
		p.recognizer = r
	}

	p.logger.Info("STT initialized", "recognizer", p.recognizer.Name())
	return p, nil
}

func (p *Processor) newRecognizer() (Recognizer, error) {
	switch p.cfg.Backend {
	case "", "whisper-cli":
		modelPath := p.cfg.Whisper.ModelPath
		if modelPath == "" {
			modelPath = ModelPath(p.cfg.Whisper.ModelsDir, p.cfg.ModelSize)
		}
		return NewWhisperCLI(WhisperCLIConfig{
			Binary:    p.cfg.Whisper.Binary,
			ModelPath: modelPath,
			Threads:   p.cfg.Whisper.Threads,
			UseGPU:    p.device == "cuda",
			TempDir:   p.tempDir,
		})
	case "openai":
		return NewOpenAIRecognizer(OpenAIConfig{
			BaseURL: p.cfg.OpenAI.BaseURL,
			APIKey:  p.cfg.OpenAI.APIKey,
			Model:   p.cfg.OpenAI.Model,
		}), nil
	default:
		return nil, apperror.Newf(apperror.CodeConfig, "stt.NewProcessor", "unsupported STT backend: %s", p.cfg.Backend)
	}
}

func validModelSize(size string) bool {
	for _, s := range ModelSizes {
		if size == s || strings.HasPrefix(size, s+"-") {
			return true
		}
	}
	return false
}

// Close releases the recognizer
func (p *Processor) Close() error {
	return p.recognizer.Close()
}

// DefaultLanguage returns the configured default language code
func (p *Processor) DefaultLanguage() string {
	return p.cfg.Language
}

// DetectLanguage identifies the spoken language among the supported languages
// (all of them when supported is empty). On failure the result falls back to
// the default language with confidence 0.5 and carries the error message.
func (p *Processor) DetectLanguage(ctx context.Context, buf []byte, format string, supported []string) (*DetectionResult, error) {
	start := time.Now()
	candidates := candidateLanguages(supported)

	fail := func(err error) (*DetectionResult, error) {
		p.logger.Error("Language detection failed", "error", err)
		return &DetectionResult{
			DetectedLanguage:   p.cfg.Language,
			LanguageConfidence: 0.5,
			AllLanguages:       []LanguageScore{{Language: p.cfg.Language, Confidence: 0.5}},
			SupportedLanguages: candidates,
			DetectionDuration:  time.Since(start).Seconds(),
			Error:              err.Error(),
		}, err
	}

	if err := validateBuffer(buf); err != nil {
		return fail(err)
	}

	samples, err := p.prepareBuffer(ctx, buf, format, p.cfg.DetectDuration.Duration)
	if err != nil {
		return fail(err)
	}

	_, info, err := p.recognize(ctx, samples, Options{
		BeamSize:    1,
		BestOf:      1,
		Temperature: 0,
		VADFilter:   true,
		MinSilence:  p.cfg.VAD.MinSilence.Duration,
		MinSpeech:   p.cfg.VAD.MinSpeech.Duration,
	})
	if err != nil {
		return fail(err)
	}

	detected := info.Language
	if detected == "" {
		detected = p.cfg.Language
	}
	probability := 0.5
	if info.LanguageProbability != nil {
		probability = *info.LanguageProbability
	}

	if !contains(candidates, detected) {
		p.logger.Warn("Detected language not supported, using default",
			"detected", detected, "default", p.cfg.Language)
		detected = p.cfg.Language
		probability = 0.5
	}

	result := &DetectionResult{
		DetectedLanguage:   detected,
		LanguageConfidence: probability,
		AllLanguages:       rankLanguages(candidates, detected, probability),
		SupportedLanguages: candidates,
		DetectionDuration:  time.Since(start).Seconds(),
		AudioDuration:      audio.Duration(samples, TargetSampleRate),
	}

	p.logger.Info("Language detected",
		"language", detected,
		"confidence", fmt.Sprintf("%.2f", probability),
		"duration", fmt.Sprintf("%.2fs", result.DetectionDuration))

	return result, nil
}

// rankLanguages gives the detected language its probability and splits the
// remainder over the other candidates, at least 0.1 each
func rankLanguages(candidates []string, detected string, probability float64) []LanguageScore {
	others := len(candidates) - 1
	share := 1 - probability
	if others > 0 {
		share /= float64(others)
	}
	share = math.Max(0.1, share)

	scores := make([]LanguageScore, 0, len(candidates))
	for _, lang := range candidates {
		conf := share
		if lang == detected {
			conf = probability
		}
		scores = append(scores, LanguageScore{Language: lang, Confidence: conf})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})
	return scores
}

// TranscribeBuffer transcribes audio in the target language (the default
// language when empty). On failure the result carries empty text, zero
// scores and the error message.
func (p *Processor) TranscribeBuffer(ctx context.Context, buf []byte, format, targetLanguage string) (*TranscriptionResult, error) {
	start := time.Now()

	language := p.cfg.Language
	if targetLanguage != "" {
		language = NormalizeLanguage(targetLanguage)
	}

	fail := func(err error) (*TranscriptionResult, error) {
		p.logger.Error("Transcription failed", "error", err)
		return &TranscriptionResult{
			Language:  p.cfg.Language,
			Duration:  time.Since(start).Seconds(),
			ModelUsed: p.cfg.ModelSize,
			Error:     err.Error(),
		}, err
	}

	if err := validateBuffer(buf); err != nil {
		return fail(err)
	}

	samples, err := p.prepareBuffer(ctx, buf, format, p.cfg.MaxDuration.Duration)
	if err != nil {
		return fail(err)
	}

	segments, info, err := p.recognize(ctx, samples, Options{
		Language:    language,
		BeamSize:    5,
		BestOf:      5,
		Temperature: 0,
		VADFilter:   true,
		MinSilence:  p.cfg.VAD.MinSilence.Duration,
		MinSpeech:   p.cfg.VAD.MinSpeech.Duration,
	})
	if err != nil {
		return fail(err)
	}

	var (
		text       strings.Builder
		total      float64
		scored     int
		segResults = make([]SegmentResult, 0, len(segments))
	)
	for _, s := range segments {
		text.WriteString(s.Text)
		sr := SegmentResult{Text: strings.TrimSpace(s.Text), Start: s.Start, End: s.End}
		if s.AvgLogprob != nil {
			conf := math.Min(1, math.Max(0, math.Exp(*s.AvgLogprob)))
			sr.Confidence = float64Ptr(conf)
			total += conf
			scored++
		}
		segResults = append(segResults, sr)
	}

	confidence := 0.0
	if scored > 0 {
		confidence = total / float64(scored)
	}

	cleaned := Clean(text.String())
	quality := AssessQuality(cleaned, confidence, len(buf))

	resultLanguage := info.Language
	if resultLanguage == "" {
		resultLanguage = language
	}
	detectedProbability := 1.0
	if info.LanguageProbability != nil {
		detectedProbability = *info.LanguageProbability
	}

	result := &TranscriptionResult{
		Text:                        cleaned,
		Language:                    resultLanguage,
		Confidence:                  confidence,
		QualityScore:                quality,
		Duration:                    time.Since(start).Seconds(),
		AudioDuration:               audio.Duration(samples, TargetSampleRate),
		DetectedLanguageProbability: detectedProbability,
		ModelUsed:                   p.cfg.ModelSize,
		SegmentsCount:               len(segments),
		Segments:                    segResults,
	}

	p.logger.Info("Transcription completed",
		"duration", fmt.Sprintf("%.2fs", result.Duration),
		"language", resultLanguage,
		"confidence", fmt.Sprintf("%.2f", confidence),
		"quality", fmt.Sprintf("%.2f", quality))

	return result, nil
}

func validateBuffer(buf []byte) error {
	if len(buf) < MinBufferSize {
		return apperror.New(apperror.CodeInvalidInput, "stt", "audio buffer is empty or too small")
	}
	return nil
}

var formatRe = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// prepareBuffer writes buf to a temp file named after format and preprocesses it
func (p *Processor) prepareBuffer(ctx context.Context, buf []byte, format string, maxDuration time.Duration) ([]float32, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		format = "wav"
	}
	if !formatRe.MatchString(format) {
		return nil, apperror.Newf(apperror.CodeInvalidInput, "stt", "invalid audio format: %q", format)
	}

	f, err := os.CreateTemp(p.tempDir, "voicebridge-stt-*."+format)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stt", "failed to create temp file")
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stt", "failed to write temp file")
	}
	if err := f.Close(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stt", "failed to write temp file")
	}

	return p.Preprocess(ctx, path, maxDuration)
}

// Preprocess decodes an audio file to 16 kHz mono, enforces the duration
// limits and normalizes the signal. A zero maxDuration uses the configured maximum.
func (p *Processor) Preprocess(ctx context.Context, path string, maxDuration time.Duration) ([]float32, error) {
	samples, err := audio.LoadFile(ctx, path, TargetSampleRate, p.ffmpeg)
	if err != nil {
		p.logger.Error("Audio preprocessing failed", "error", err)
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "stt.Preprocess", "failed to decode audio")
	}

	if maxDuration <= 0 {
		maxDuration = p.cfg.MaxDuration.Duration
	}

	duration := audio.Duration(samples, TargetSampleRate)
	switch {
	case duration < p.cfg.MinDuration.Seconds():
		p.logger.Warn("Audio duration below minimum",
			"duration", fmt.Sprintf("%.2fs", duration),
			"minimum", p.cfg.MinDuration.Duration)
	case maxDuration > 0 && duration > maxDuration.Seconds():
		p.logger.Warn("Audio duration exceeds maximum, truncating",
			"duration", fmt.Sprintf("%.2fs", duration),
			"maximum", maxDuration)
		samples = samples[:int(maxDuration.Seconds()*TargetSampleRate)]
	}

	audio.Normalize(samples, TargetSampleRate)
	return samples, nil
}

// recognize applies the speech filter and the recognition timeout
func (p *Processor) recognize(ctx context.Context, samples []float32, opts Options) ([]Segment, Info, error) {
	if opts.VADFilter && p.filter != nil {
		speech, err := p.filter.Apply(samples)
		if err != nil {
			return nil, Info{}, apperror.Wrap(err, apperror.CodeInternal, "stt.vad", "voice activity detection failed")
		}
		if len(speech) == 0 {
			p.logger.Debug("No speech detected")
			return nil, Info{Language: opts.Language}, nil
		}
		samples = speech
	}

	if timeout := p.cfg.Timeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return p.recognizer.Recognize(ctx, samples, opts)
}

// Status reports the processor configuration
func (p *Processor) Status() *Status {
	return &Status{
		Available:                true,
		Backend:                  p.recognizer.Name(),
		ModelSize:                p.cfg.ModelSize,
		DefaultLanguage:          p.cfg.Language,
		SupportedLanguages:       LanguageCodes(),
		LanguageNames:            LanguageNames(),
		Device:                   p.device,
		ComputeType:              p.computeType,
		CUDAAvailable:            p.cudaAvailable,
		TargetSampleRate:         TargetSampleRate,
		LanguageDetectionEnabled: true,
		VADEnabled:               p.filter != nil,
		Version:                  version.STT,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
