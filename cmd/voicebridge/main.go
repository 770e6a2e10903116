// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     main
// Description: voicebridge command line entry point
// License:     MIT
// ============================================================================

package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/msto63/voicebridge/cmd/voicebridge/cmd"
)

func main() {
	// optional; missing .env is fine
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
