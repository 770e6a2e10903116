package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/internal/audio/playback"
	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

var (
	synthText     string
	synthOutput   string
	synthProvider string
	synthVoice    string
	synthFormat   string
	synthPlay     bool
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Synthesize speech from text",
	Long: `Synthesize Swedish speech with the configured TTS provider.

The result is printed as JSON with the audio replaced by its size.

Examples:
  voicebridge synthesize --text "Hej och välkommen" --output hej.wav
  voicebridge synthesize --text "Tack" --provider espeak --play`,
	RunE: runSynthesize,
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)
	synthesizeCmd.Flags().StringVar(&synthText, "text", "", "text to synthesize (required)")
	synthesizeCmd.Flags().StringVarP(&synthOutput, "output", "o", "", "write audio to this file")
	synthesizeCmd.Flags().StringVar(&synthProvider, "provider", "", "TTS provider (piper, espeak, system)")
	synthesizeCmd.Flags().StringVar(&synthVoice, "voice", "", "voice label")
	synthesizeCmd.Flags().StringVar(&synthFormat, "format", "", "output format (wav, mp3)")
	synthesizeCmd.Flags().BoolVar(&synthPlay, "play", false, "play the audio on the default output device")
	synthesizeCmd.MarkFlagRequired("text")
}

// synthesizeOutput is the printed result: the audio bytes are replaced by their size
type synthesizeOutput struct {
	*tts.Result
	AudioSize  int    `json:"audio_size"`
	OutputFile string `json:"output_file,omitempty"`
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := appConfig

	if synthProvider != "" {
		cfg.TTS.Provider = synthProvider
	}
	if synthVoice != "" {
		cfg.TTS.Voice = synthVoice
	}

	store, err := newCache(ctx, cfg.Cache)
	if err != nil {
		logging.New("cache").Warn("Audio cache unavailable, continuing without", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	hist, err := openHistory(cfg.History)
	if err != nil {
		logging.New("history").Warn("History unavailable", "error", err)
	}
	if hist != nil {
		defer hist.Close()
	}

	processor, err := newTTS(ctx, cfg, store)
	if err != nil {
		recordHistory(ctx, hist, history.FromSynthesis(synthText, nil, err))
		return err
	}

	result, synthErr := processor.Synthesize(ctx, synthText, synthFormat)
	recordHistory(ctx, hist, history.FromSynthesis(synthText, result, synthErr))

	out := synthesizeOutput{AudioSize: len(result.Audio)}
	audio := result.Audio
	printable := *result
	printable.Audio = nil
	out.Result = &printable

	if synthErr == nil && synthOutput != "" {
		if err := os.WriteFile(synthOutput, audio, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", synthOutput, err)
		}
		out.OutputFile = synthOutput
	}

	if err := printJSON(out); err != nil {
		return err
	}
	if synthErr != nil {
		return synthErr
	}

	if synthPlay {
		if result.Format != tts.FormatWAV {
			return fmt.Errorf("playback requires wav output, got %s", result.Format)
		}
		if err := playback.New().PlayWAV(audio); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
	}
	return nil
}
