// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     config
// Description: TOML, YAML and environment configuration
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "VOICEBRIDGE_CONFIG"

// Config holds the complete application configuration
type Config struct {
	General GeneralConfig `toml:"general" yaml:"general"`
	TTS     TTSConfig     `toml:"tts" yaml:"tts"`
	STT     STTConfig     `toml:"stt" yaml:"stt"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Cache   CacheConfig   `toml:"cache" yaml:"cache"`
	History HistoryConfig `toml:"history" yaml:"history"`
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	Name      string `toml:"name" yaml:"name"`
	DataDir   string `toml:"data_dir" yaml:"data_dir"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
	TempDir   string `toml:"temp_dir" yaml:"temp_dir"`
}

// TTSConfig holds text-to-speech settings
type TTSConfig struct {
	Provider     string       `toml:"provider" yaml:"provider"`
	Voice        string       `toml:"voice" yaml:"voice"`
	Device       string       `toml:"device" yaml:"device"`
	Format       string       `toml:"format" yaml:"format"`
	ProbeTimeout Duration     `toml:"probe_timeout" yaml:"probe_timeout"`
	Timeout      Duration     `toml:"timeout" yaml:"timeout"`
	Piper        PiperConfig  `toml:"piper" yaml:"piper"`
	ESpeak       ESpeakConfig `toml:"espeak" yaml:"espeak"`
	System       SystemConfig `toml:"system" yaml:"system"`
	FFmpeg       FFmpegConfig `toml:"ffmpeg" yaml:"ffmpeg"`
}

// PiperConfig holds Piper engine settings
type PiperConfig struct {
	Binary string `toml:"binary" yaml:"binary"`
	Model  string `toml:"model" yaml:"model"`
}

// ESpeakConfig holds eSpeak engine settings
type ESpeakConfig struct {
	Binary    string `toml:"binary" yaml:"binary"`
	Voice     string `toml:"voice" yaml:"voice"`
	Speed     int    `toml:"speed" yaml:"speed"`
	Pitch     int    `toml:"pitch" yaml:"pitch"`
	Amplitude int    `toml:"amplitude" yaml:"amplitude"`
}

// SystemConfig holds macOS say settings
type SystemConfig struct {
	Binary     string `toml:"binary" yaml:"binary"`
	Voice      string `toml:"voice" yaml:"voice"`
	DataFormat string `toml:"data_format" yaml:"data_format"`
}

// FFmpegConfig holds ffmpeg settings used for conversion and decoding
type FFmpegConfig struct {
	Binary  string   `toml:"binary" yaml:"binary"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`
}

// STTConfig holds speech-to-text settings
type STTConfig struct {
	Backend        string        `toml:"backend" yaml:"backend"`
	ModelSize      string        `toml:"model_size" yaml:"model_size"`
	Language       string        `toml:"language" yaml:"language"`
	Device         string        `toml:"device" yaml:"device"`
	MinDuration    Duration      `toml:"min_duration" yaml:"min_duration"`
	MaxDuration    Duration      `toml:"max_duration" yaml:"max_duration"`
	DetectDuration Duration      `toml:"detect_duration" yaml:"detect_duration"`
	Timeout        Duration      `toml:"timeout" yaml:"timeout"`
	Whisper        WhisperConfig `toml:"whisper" yaml:"whisper"`
	OpenAI         OpenAIConfig  `toml:"openai" yaml:"openai"`
	VAD            VADConfig     `toml:"vad" yaml:"vad"`
}

// WhisperConfig holds whisper.cpp CLI settings
type WhisperConfig struct {
	Binary    string `toml:"binary" yaml:"binary"`
	ModelsDir string `toml:"models_dir" yaml:"models_dir"`
	ModelPath string `toml:"model_path" yaml:"model_path"`
	Threads   int    `toml:"threads" yaml:"threads"`
}

// OpenAIConfig holds settings for an OpenAI-compatible transcription endpoint
type OpenAIConfig struct {
	BaseURL string `toml:"base_url" yaml:"base_url"`
	APIKey  string `toml:"api_key" yaml:"api_key"`
	Model   string `toml:"model" yaml:"model"`
}

// VADConfig holds voice activity detection settings
type VADConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled"`
	Mode       int      `toml:"mode" yaml:"mode"`
	MinSilence Duration `toml:"min_silence" yaml:"min_silence"`
	MinSpeech  Duration `toml:"min_speech" yaml:"min_speech"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Host           string   `toml:"host" yaml:"host"`
	Port           int      `toml:"port" yaml:"port"`
	ReadTimeout    Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout" yaml:"write_timeout"`
	MaxUploadBytes int64    `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// CacheConfig holds synthesized-audio cache settings
type CacheConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled"`
	Backend   string   `toml:"backend" yaml:"backend"`
	MaxItems  int      `toml:"max_items" yaml:"max_items"`
	TTL       Duration `toml:"ttl" yaml:"ttl"`
	RedisAddr string   `toml:"redis_addr" yaml:"redis_addr"`
	RedisDB   int      `toml:"redis_db" yaml:"redis_db"`
	Prefix    string   `toml:"prefix" yaml:"prefix"`
}

// HistoryConfig holds request history settings
type HistoryConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled"`
	Path      string   `toml:"path" yaml:"path"`
	Retention Duration `toml:"retention" yaml:"retention"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration string from YAML
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := newWithSwitches()
	cfg.applyDefaults()
	return cfg
}

// newWithSwitches returns an empty config whose boolean switches default to on
func newWithSwitches() *Config {
	cfg := &Config{}
	cfg.Cache.Enabled = true
	cfg.History.Enabled = true
	cfg.STT.VAD.Enabled = true
	return cfg
}

// Load loads configuration from a TOML or YAML file, chosen by extension
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration content in the given format ("toml" or "yaml")
func Parse(data []byte, format string) (*Config, error) {
	cfg := newWithSwitches()

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from VOICEBRIDGE_CONFIG or the default
// locations. Without any config file the defaults are returned.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		for _, p := range DefaultPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// DefaultPaths returns the locations searched by LoadFromEnv
func DefaultPaths() []string {
	return []string{
		"./configs/voicebridge.toml",
		"./voicebridge.toml",
		"./voicebridge.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/voicebridge/config.toml"),
	}
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "voicebridge"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = "./data"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "json"
	}

	// TTS
	if c.TTS.Provider == "" {
		c.TTS.Provider = "piper"
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = "swedish_female"
	}
	if c.TTS.Device == "" {
		c.TTS.Device = "auto"
	}
	if c.TTS.Format == "" {
		c.TTS.Format = "wav"
	}
	if c.TTS.ProbeTimeout.Duration == 0 {
		c.TTS.ProbeTimeout.Duration = 5 * time.Second
	}
	if c.TTS.Timeout.Duration == 0 {
		c.TTS.Timeout.Duration = 30 * time.Second
	}
	if c.TTS.Piper.Binary == "" {
		c.TTS.Piper.Binary = "piper"
	}
	if c.TTS.Piper.Model == "" {
		c.TTS.Piper.Model = "sv_SE-nst-medium"
	}
	if c.TTS.ESpeak.Binary == "" {
		c.TTS.ESpeak.Binary = "espeak"
	}
	if c.TTS.ESpeak.Voice == "" {
		c.TTS.ESpeak.Voice = "sv"
	}
	if c.TTS.ESpeak.Speed == 0 {
		c.TTS.ESpeak.Speed = 160
	}
	if c.TTS.ESpeak.Pitch == 0 {
		c.TTS.ESpeak.Pitch = 50
	}
	if c.TTS.ESpeak.Amplitude == 0 {
		c.TTS.ESpeak.Amplitude = 100
	}
	if c.TTS.System.Binary == "" {
		c.TTS.System.Binary = "say"
	}
	if c.TTS.System.Voice == "" {
		c.TTS.System.Voice = "Alva"
	}
	if c.TTS.System.DataFormat == "" {
		c.TTS.System.DataFormat = "LEI16@22050"
	}
	if c.TTS.FFmpeg.Binary == "" {
		c.TTS.FFmpeg.Binary = "ffmpeg"
	}
	if c.TTS.FFmpeg.Timeout.Duration == 0 {
		c.TTS.FFmpeg.Timeout.Duration = 10 * time.Second
	}

	// STT
	if c.STT.Backend == "" {
		c.STT.Backend = "whisper-cli"
	}
	if c.STT.ModelSize == "" {
		c.STT.ModelSize = "base"
	}
	if c.STT.Language == "" {
		c.STT.Language = "sv"
	}
	if c.STT.Device == "" {
		c.STT.Device = "auto"
	}
	if c.STT.MinDuration.Duration == 0 {
		c.STT.MinDuration.Duration = 500 * time.Millisecond
	}
	if c.STT.MaxDuration.Duration == 0 {
		c.STT.MaxDuration.Duration = 120 * time.Second
	}
	if c.STT.DetectDuration.Duration == 0 {
		c.STT.DetectDuration.Duration = 10 * time.Second
	}
	if c.STT.Timeout.Duration == 0 {
		c.STT.Timeout.Duration = 300 * time.Second
	}
	if c.STT.Whisper.Binary == "" {
		c.STT.Whisper.Binary = "whisper-cli"
	}
	if c.STT.Whisper.ModelsDir == "" {
		c.STT.Whisper.ModelsDir = "./models"
	}
	if c.STT.Whisper.Threads == 0 {
		c.STT.Whisper.Threads = 4
	}
	if c.STT.OpenAI.BaseURL == "" {
		c.STT.OpenAI.BaseURL = "http://localhost:8178/v1"
	}
	if c.STT.OpenAI.Model == "" {
		c.STT.OpenAI.Model = "whisper-1"
	}
	if c.STT.VAD.Mode == 0 {
		c.STT.VAD.Mode = 2
	}
	if c.STT.VAD.MinSilence.Duration == 0 {
		c.STT.VAD.MinSilence.Duration = 500 * time.Millisecond
	}
	if c.STT.VAD.MinSpeech.Duration == 0 {
		c.STT.VAD.MinSpeech.Duration = 250 * time.Millisecond
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 30 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 330 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20
	}

	// Cache
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.MaxItems == 0 {
		c.Cache.MaxItems = 512
	}
	if c.Cache.TTL.Duration == 0 {
		c.Cache.TTL.Duration = time.Hour
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "voicebridge:tts:"
	}

	// History
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.General.DataDir, "history.db")
	}
	if c.History.Retention.Duration == 0 {
		c.History.Retention.Duration = 30 * 24 * time.Hour
	}
}

// expandEnvVars expands environment variables in configuration values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.General.TempDir = os.ExpandEnv(c.General.TempDir)
	c.TTS.Piper.Model = os.ExpandEnv(c.TTS.Piper.Model)
	c.STT.Whisper.ModelsDir = os.ExpandEnv(c.STT.Whisper.ModelsDir)
	c.STT.Whisper.ModelPath = os.ExpandEnv(c.STT.Whisper.ModelPath)
	c.STT.OpenAI.APIKey = os.ExpandEnv(c.STT.OpenAI.APIKey)
	c.History.Path = os.ExpandEnv(c.History.Path)
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.TTS.Provider {
	case "piper", "espeak", "system":
	default:
		return fmt.Errorf("invalid tts.provider %q: must be piper, espeak or system", c.TTS.Provider)
	}
	switch c.TTS.Format {
	case "wav", "mp3":
	default:
		return fmt.Errorf("invalid tts.format %q: must be wav or mp3", c.TTS.Format)
	}
	switch c.STT.Backend {
	case "whisper-cli", "openai":
	default:
		return fmt.Errorf("invalid stt.backend %q: must be whisper-cli or openai", c.STT.Backend)
	}
	switch c.STT.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("invalid stt.device %q: must be auto, cpu or cuda", c.STT.Device)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.backend %q: must be memory or redis", c.Cache.Backend)
	}
	if c.STT.VAD.Mode < 0 || c.STT.VAD.Mode > 3 {
		return fmt.Errorf("invalid stt.vad.mode %d: must be between 0 and 3", c.STT.VAD.Mode)
	}
	return nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
