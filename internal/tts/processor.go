// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     tts
// Description: Synthesis pipeline with caching and engine fallback
// License:     MIT
// ============================================================================

package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msto63/voicebridge/internal/audio"
	"github.com/msto63/voicebridge/pkg/core/apperror"
	"github.com/msto63/voicebridge/pkg/core/cache"
	"github.com/msto63/voicebridge/pkg/core/config"
	"github.com/msto63/voicebridge/pkg/core/logging"
	"github.com/msto63/voicebridge/pkg/core/version"
)

// Processor selects an engine and turns text into audio
type Processor struct {
	cfg      config.TTSConfig
	engines  map[Provider]Engine
	engine   Engine
	ffmpeg   *audio.FFmpeg
	cache    cache.Store
	cacheTTL time.Duration
	logger   *logging.Logger
	tempDir  string
	goos     string
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithCache enables the synthesized-audio cache
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(p *Processor) {
		p.cache = store
		p.cacheTTL = ttl
	}
}

// WithTempDir sets the directory for engine output files
func WithTempDir(dir string) Option {
	return func(p *Processor) { p.tempDir = dir }
}

// WithPlatform overrides the operating system used for the system provider probe
func WithPlatform(goos string) Option {
	return func(p *Processor) { p.goos = goos }
}

// WithEngine replaces the engine for its provider
func WithEngine(e Engine) Option {
	return func(p *Processor) { p.engines[e.Provider()] = e }
}

// NewProcessor validates the requested provider and initializes the first
// available engine, falling back along piper, espeak, system.
func NewProcessor(ctx context.Context, cfg config.TTSConfig, opts ...Option) (*Processor, error) {
	requested, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfig, "tts.NewProcessor", "")
	}

	p := &Processor{
		cfg:     cfg,
		engines: make(map[Provider]Engine),
		ffmpeg:  audio.NewFFmpeg(cfg.FFmpeg.Binary, cfg.FFmpeg.Timeout.Duration),
		logger:  logging.New("tts"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.addDefaultEngines()

	p.logger.Info("Initializing TTS", "provider", requested, "voice", cfg.Voice, "device", cfg.Device)

	start := 0
	for i, prov := range fallbackChain {
		if prov == requested {
			start = i
		}
	}

	for i := start; i < len(fallbackChain); i++ {
		prov := fallbackChain[i]
		engine := p.engines[prov]
		if err := engine.Probe(ctx); err != nil {
			if i+1 < len(fallbackChain) {
				p.logger.Warn("TTS provider not available, falling back",
					"provider", prov, "fallback", fallbackChain[i+1], "error", err)
				continue
			}
			p.logger.Error("No TTS providers available", "error", err)
			return nil, apperror.New(apperror.CodeServiceUnavailable, "tts.NewProcessor", "no TTS providers available")
		}
		p.engine = engine
		break
	}

	p.logger.Info("TTS initialized", "provider", p.engine.Provider())
	return p, nil
}

func (p *Processor) addDefaultEngines() {
	probe := p.cfg.ProbeTimeout.Duration
	if probe <= 0 {
		probe = 5 * time.Second
	}
	if _, ok := p.engines[ProviderPiper]; !ok {
		p.engines[ProviderPiper] = NewPiperEngine(p.cfg.Piper, probe)
	}
	if _, ok := p.engines[ProviderESpeak]; !ok {
		p.engines[ProviderESpeak] = NewESpeakEngine(p.cfg.ESpeak, probe)
	}
	if _, ok := p.engines[ProviderSystem]; !ok {
		p.engines[ProviderSystem] = NewSystemEngine(p.cfg.System, p.goos)
	}
}

// Provider returns the provider that was selected at initialization
func (p *Processor) Provider() Provider {
	return p.engine.Provider()
}

// Synthesize converts text to speech in the requested format ("wav" or "mp3",
// empty means the configured default). On failure the returned result carries
// the original text, the elapsed time and the error message.
func (p *Processor) Synthesize(ctx context.Context, text, format string) (*Result, error) {
	start := time.Now()
	provider := string(p.engine.Provider())

	fail := func(err error) (*Result, error) {
		p.logger.Error("TTS synthesis failed", "provider", provider, "error", err)
		return &Result{
			Text:     text,
			Duration: time.Since(start).Seconds(),
			Error:    err.Error(),
			Provider: provider,
		}, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail(apperror.New(apperror.CodeInvalidInput, "tts.Synthesize", "text is empty"))
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = p.cfg.Format
	}
	if format != FormatWAV && format != FormatMP3 {
		return fail(apperror.Newf(apperror.CodeInvalidInput, "tts.Synthesize", "unsupported output format: %s", format))
	}

	prepared := PrepareSwedishText(trimmed)
	key := cache.AudioKey(provider, p.cfg.Voice, format, prepared)

	var (
		data   []byte
		actual = format
		cached bool
	)

	if p.cache != nil {
		if hit, ok, err := p.cache.Get(ctx, key); err != nil {
			p.logger.Warn("Audio cache lookup failed", "error", err)
		} else if ok {
			data, cached = hit, true
		}
	}

	if !cached {
		var err error
		data, actual, err = p.render(ctx, prepared, format)
		if err != nil {
			return fail(err)
		}
		if p.cache != nil && actual == format {
			if err := p.cache.Set(ctx, key, data, p.cacheTTL); err != nil {
				p.logger.Warn("Audio cache store failed", "error", err)
			}
		}
	}

	words := countWords(prepared)
	result := &Result{
		Audio:                  data,
		Text:                   prepared,
		Duration:               time.Since(start).Seconds(),
		EstimatedAudioDuration: float64(words) / 4.5,
		SampleRate:             SampleRate,
		Channels:               Channels,
		Format:                 actual,
		Provider:               provider,
		Voice:                  p.cfg.Voice,
		TextLength:             len([]rune(prepared)),
		WordCount:              words,
		Cached:                 cached,
	}

	p.logger.Info("TTS synthesis completed",
		"duration", fmt.Sprintf("%.2fs", result.Duration),
		"words", words,
		"provider", provider,
		"cached", cached)

	return result, nil
}

// render runs the engine in a private temp directory and converts its output
// to the requested format. It returns the audio and the format it is in.
func (p *Processor) render(ctx context.Context, text, format string) ([]byte, string, error) {
	dir, err := os.MkdirTemp(p.tempDir, "voicebridge-tts-")
	if err != nil {
		return nil, "", apperror.Wrap(err, apperror.CodeInternal, "tts.Synthesize", "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	timeout := p.cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	engineCtx, cancel := context.WithTimeout(ctx, timeout)
	path, native, err := p.engine.Synthesize(engineCtx, text, dir)
	cancel()
	if err != nil {
		return nil, "", err
	}

	if native == format {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", apperror.Wrap(err, apperror.CodeExternalService, "tts.Synthesize", "engine produced no audio")
		}
		return data, format, nil
	}

	out := filepath.Join(dir, "speech."+format)
	if err := p.ffmpeg.Convert(ctx, path, out); err != nil {
		if format == FormatMP3 {
			return nil, "", apperror.Wrap(err, apperror.CodeExternalService, "tts.Synthesize", "mp3 conversion failed")
		}
		p.logger.Warn("Audio conversion failed, returning engine output", "from", native, "to", format, "error", err)
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, "", apperror.Wrap(rerr, apperror.CodeExternalService, "tts.Synthesize", "engine produced no audio")
		}
		return data, native, nil
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, "", apperror.Wrap(err, apperror.CodeExternalService, "tts.Synthesize", "conversion produced no audio")
	}
	return data, format, nil
}

// Status reports the processor configuration and probes every engine
func (p *Processor) Status(ctx context.Context) *Status {
	providers := make(map[string]bool, len(fallbackChain))
	for _, prov := range fallbackChain {
		providers[string(prov)] = p.engines[prov].Probe(ctx) == nil
	}

	return &Status{
		Available:        true,
		Provider:         string(p.engine.Provider()),
		Voice:            p.cfg.Voice,
		Device:           p.cfg.Device,
		SampleRate:       SampleRate,
		Channels:         Channels,
		SupportedFormats: append([]string(nil), SupportedFormats...),
		Version:          version.TTS,
		Providers:        providers,
		FFmpeg:           p.ffmpeg.Available(),
	}
}
