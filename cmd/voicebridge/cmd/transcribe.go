package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/pkg/core/config"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

var (
	transAudio              string
	transModel              string
	transLanguage           string
	transDevice             string
	transDetectOnly         bool
	transSupportedLanguages string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe speech from an audio file",
	Long: `Transcribe an audio file with the configured whisper backend, or
only detect its language.

Examples:
  voicebridge transcribe --audio feedback.wav
  voicebridge transcribe --audio clip.mp3 --language en --model small
  voicebridge transcribe --audio clip.ogg --detect-language-only --supported-languages sv,en,da`,
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
	transcribeCmd.Flags().StringVar(&transAudio, "audio", "", "audio file to transcribe (required)")
	transcribeCmd.Flags().StringVar(&transModel, "model", "", "whisper model size (tiny, base, small, medium, large)")
	transcribeCmd.Flags().StringVar(&transLanguage, "language", "", "target language code (default: configured language)")
	transcribeCmd.Flags().StringVar(&transDevice, "device", "", "device (auto, cpu, cuda)")
	transcribeCmd.Flags().BoolVar(&transDetectOnly, "detect-language-only", false, "only detect the spoken language")
	transcribeCmd.Flags().StringVar(&transSupportedLanguages, "supported-languages", "", "comma-separated candidate languages for detection")
	transcribeCmd.MarkFlagRequired("audio")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := appConfig
	applyTranscribeFlags(cfg)

	buf, err := os.ReadFile(transAudio)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(transAudio)), ".")
	if format == "" {
		format = "wav"
	}

	hist, err := openHistory(cfg.History)
	if err != nil {
		logging.New("history").Warn("History unavailable", "error", err)
	}
	if hist != nil {
		defer hist.Close()
	}

	processor, cleanup, err := newSTT(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if transDetectOnly {
		var supported []string
		for _, lang := range strings.Split(transSupportedLanguages, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				supported = append(supported, lang)
			}
		}

		result, err := processor.DetectLanguage(ctx, buf, format, supported)
		recordHistory(ctx, hist, history.FromDetection(len(buf), format, result, err))
		if perr := printJSON(result); perr != nil {
			return perr
		}
		return err
	}

	result, err := processor.TranscribeBuffer(ctx, buf, format, transLanguage)
	recordHistory(ctx, hist, history.FromTranscription(len(buf), format, transLanguage, result, err))
	if perr := printJSON(result); perr != nil {
		return perr
	}
	return err
}

// applyTranscribeFlags overrides the STT settings given on the command line.
// --language becomes the processor default, so it also drives the
// detection fallback.
func applyTranscribeFlags(cfg *config.Config) {
	if transModel != "" {
		cfg.STT.ModelSize = transModel
	}
	if transDevice != "" {
		cfg.STT.Device = transDevice
	}
	if transLanguage != "" {
		cfg.STT.Language = transLanguage
	}
}
