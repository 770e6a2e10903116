// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     cmd
// Description: Root command, configuration loading and output helpers
// License:     MIT
// ============================================================================

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/pkg/core/config"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

var (
	cfgFile string
	verbose bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "voicebridge",
	Short: "Swedish text-to-speech and speech-to-text",
	Long: `voicebridge wraps external speech engines for a feedback platform.

Text-to-speech selects among piper, espeak and macOS say with fallback.
Speech-to-text runs a whisper model via whisper.cpp or an
OpenAI-compatible transcription server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $VOICEBRIDGE_CONFIG or ./configs/voicebridge.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// loadConfig reads the configuration and sets up logging before any subcommand runs
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		appConfig, err = config.Load(cfgFile)
	} else {
		appConfig, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	level := appConfig.General.LogLevel
	if verbose {
		level = "debug"
	}
	logging.Configure(level, appConfig.General.LogFormat, os.Stderr)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
