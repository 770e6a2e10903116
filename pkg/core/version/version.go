// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     version
// Description: Component versions reported by status and version output
// License:     MIT
// ============================================================================

// Package version holds the component versions reported by status endpoints
package version

const (
	// Platform is the voicebridge release
	Platform = "1.0.0"

	// TTS and STT are the processor versions shown in their status
	TTS = "1.0.0"
	STT = "2.0.0"
)
