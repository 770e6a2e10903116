package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/internal/history"
)

var (
	historyLimit int
	historyKind  string
	historyStats bool
	historyPrune bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded requests",
	Long: `Show the most recent synthesis, transcription and language detection
requests recorded in the history database.

Examples:
  voicebridge history --limit 10
  voicebridge history --kind transcribe
  voicebridge history --stats
  voicebridge history --prune`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "filter by kind (synthesize, transcribe, detect_language)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "print aggregate counts instead of entries")
	historyCmd.Flags().BoolVar(&historyPrune, "prune", false, "delete entries older than the configured retention")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if !appConfig.History.Enabled {
		return fmt.Errorf("history is disabled in the configuration")
	}

	kind := history.Kind(historyKind)
	switch kind {
	case "", history.KindSynthesize, history.KindTranscribe, history.KindDetectLanguage:
	default:
		return fmt.Errorf("unknown kind %q", historyKind)
	}

	store, err := history.Open(appConfig.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case historyPrune:
		removed, err := store.Prune(ctx, appConfig.History.Retention.Duration)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"removed": removed, "retention": appConfig.History.Retention.String()})

	case historyStats:
		stats, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	}

	entries, err := store.List(ctx, history.Filter{Kind: kind, Limit: historyLimit})
	if err != nil {
		return err
	}
	return printJSON(entries)
}
