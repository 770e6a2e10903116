package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/msto63/voicebridge/internal/audio"
	"github.com/msto63/voicebridge/internal/audio/vad"
	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/cache"
	"github.com/msto63/voicebridge/pkg/core/config"
	"github.com/msto63/voicebridge/pkg/core/health"
	"github.com/msto63/voicebridge/pkg/core/logging"
	"github.com/msto63/voicebridge/pkg/core/version"
)

// newCache builds the configured audio cache. Returns nil when caching is off.
func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Backend == "redis" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			Prefix: cfg.Prefix,
			TTL:    cfg.TTL.Duration,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	return cache.New(cache.Config{MaxItems: cfg.MaxItems, TTL: cfg.TTL.Duration}), nil
}

func newTTS(ctx context.Context, cfg *config.Config, store cache.Store) (*tts.Processor, error) {
	opts := []tts.Option{tts.WithTempDir(cfg.General.TempDir)}
	if store != nil {
		opts = append(opts, tts.WithCache(store, cfg.Cache.TTL.Duration))
	}
	return tts.NewProcessor(ctx, cfg.TTS, opts...)
}

// newSTT builds the STT processor with the VAD filter when enabled. The
// returned cleanup closes both.
func newSTT(ctx context.Context, cfg *config.Config) (*stt.Processor, func(), error) {
	opts := []stt.Option{
		stt.WithTempDir(cfg.General.TempDir),
		stt.WithFFmpeg(audio.NewFFmpeg(cfg.TTS.FFmpeg.Binary, time.Minute)),
	}

	var filter *vad.Filter
	if cfg.STT.VAD.Enabled {
		vcfg := vad.DefaultConfig()
		vcfg.SampleRate = stt.TargetSampleRate
		vcfg.Mode = cfg.STT.VAD.Mode
		vcfg.MinSilence = cfg.STT.VAD.MinSilence.Duration
		vcfg.MinSpeech = cfg.STT.VAD.MinSpeech.Duration

		var err error
		filter, err = vad.NewFilter(vcfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, stt.WithSpeechFilter(filter))
	}

	p, err := stt.NewProcessor(ctx, cfg.STT, opts...)
	if err != nil {
		if filter != nil {
			filter.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		p.Close()
		if filter != nil {
			filter.Close()
		}
	}
	return p, cleanup, nil
}

// openHistory opens the history store. Returns nil when history is off.
func openHistory(cfg config.HistoryConfig) (*history.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return history.Open(cfg.Path)
}

// recordHistory stores entry, logging instead of failing the command
func recordHistory(ctx context.Context, store *history.Store, entry *history.Entry) {
	if store == nil {
		return
	}
	if err := store.Record(ctx, entry); err != nil {
		logging.New("history").Warn("Failed to record history", "kind", entry.Kind, "error", err)
	}
}

// newHealthRegistry checks the engine binaries and storage backends. The
// in-memory cache reports its usage instead of a ping.
func newHealthRegistry(cfg *config.Config, store cache.Store, hist *history.Store) *health.Registry {
	registry := health.NewRegistry("voicebridge", version.Platform)

	registry.Register(health.BinaryCheck("tts.piper", cfg.TTS.Piper.Binary, false))
	registry.Register(health.BinaryCheck("tts.espeak", cfg.TTS.ESpeak.Binary, false))
	registry.Register(health.BinaryCheck("ffmpeg", cfg.TTS.FFmpeg.Binary, false))
	if cfg.STT.Backend == "whisper-cli" {
		registry.Register(health.BinaryCheck("stt.whisper", cfg.STT.Whisper.Binary, true))
	}

	switch c := store.(type) {
	case *cache.RedisStore:
		registry.Register(health.PingCheck("cache.redis", c.Ping))
	case *cache.Cache:
		registry.RegisterFunc("cache.memory", func(ctx context.Context) health.CheckResult {
			stats := c.Stats()
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Message: fmt.Sprintf("%d/%d items, %.1f%% hit rate", stats.Items, stats.MaxItems, stats.HitRate),
				Details: map[string]interface{}{
					"items":    stats.Items,
					"hits":     stats.Hits,
					"misses":   stats.Misses,
					"hit_rate": stats.HitRate,
				},
			}
		})
	}
	if hist != nil {
		registry.Register(health.PingCheck("history", hist.Ping))
	}
	return registry
}
