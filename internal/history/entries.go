package history

import (
	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
)

// FromSynthesis builds the entry for a synthesis request. result may be nil.
func FromSynthesis(text string, result *tts.Result, err error) *Entry {
	entry := &Entry{Kind: KindSynthesize, Input: text, Success: err == nil}
	if result != nil {
		entry.Provider = result.Provider
		entry.Duration = result.Duration
		entry.AudioBytes = len(result.Audio)
		entry.Error = result.Error
		entry.Metadata = map[string]interface{}{
			"voice":  result.Voice,
			"format": result.Format,
			"cached": result.Cached,
		}
	}
	return withError(entry, err)
}

// FromTranscription builds the entry for a transcription of audioBytes of format audio
func FromTranscription(audioBytes int, format, language string, result *stt.TranscriptionResult, err error) *Entry {
	entry := &Entry{
		Kind:       KindTranscribe,
		Language:   language,
		AudioBytes: audioBytes,
		Success:    err == nil,
		Metadata:   map[string]interface{}{"format": format},
	}
	if result != nil {
		entry.Provider = result.ModelUsed
		entry.Language = result.Language
		entry.Output = result.Text
		entry.Duration = result.Duration
		entry.Error = result.Error
		entry.Metadata["confidence"] = result.Confidence
		entry.Metadata["quality_score"] = result.QualityScore
	}
	return withError(entry, err)
}

// FromDetection builds the entry for a language detection
func FromDetection(audioBytes int, format string, result *stt.DetectionResult, err error) *Entry {
	entry := &Entry{
		Kind:       KindDetectLanguage,
		AudioBytes: audioBytes,
		Success:    err == nil,
		Metadata:   map[string]interface{}{"format": format},
	}
	if result != nil {
		entry.Language = result.DetectedLanguage
		entry.Output = result.DetectedLanguage
		entry.Duration = result.DetectionDuration
		entry.Error = result.Error
		entry.Metadata["confidence"] = result.LanguageConfidence
	}
	return withError(entry, err)
}

func withError(entry *Entry, err error) *Entry {
	if err != nil && entry.Error == "" {
		entry.Error = err.Error()
	}
	return entry
}
