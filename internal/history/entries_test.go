package history

import (
	"errors"
	"testing"

	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
)

func TestFromSynthesis(t *testing.T) {
	e := FromSynthesis("Hej.", &tts.Result{Audio: make([]byte, 100), Provider: "piper", Format: "wav", Cached: true}, nil)
	if e.Kind != KindSynthesize || !e.Success || e.AudioBytes != 100 || e.Provider != "piper" {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["cached"] != true {
		t.Errorf("Metadata = %v", e.Metadata)
	}

	failed := FromSynthesis("Hej.", nil, errors.New("no TTS providers available"))
	if failed.Success || failed.Error != "no TTS providers available" {
		t.Errorf("failed entry = %+v", failed)
	}
}

func TestFromTranscription(t *testing.T) {
	e := FromTranscription(2048, "wav", "", &stt.TranscriptionResult{
		Text: "Hej.", Language: "sv", ModelUsed: "whisper-base", Confidence: 0.8,
	}, nil)
	if e.Language != "sv" || e.Output != "Hej." || e.Provider != "whisper-base" || e.AudioBytes != 2048 {
		t.Errorf("entry = %+v", e)
	}

	// the result's message wins over the wrapped error text
	failed := FromTranscription(10, "mp3", "en", &stt.TranscriptionResult{Language: "sv", Error: "audio buffer too small"},
		errors.New("stt.TranscribeBuffer: audio buffer too small"))
	if failed.Success || failed.Error != "audio buffer too small" || failed.Metadata["format"] != "mp3" {
		t.Errorf("failed entry = %+v", failed)
	}
}

func TestFromDetection(t *testing.T) {
	e := FromDetection(4096, "wav", &stt.DetectionResult{DetectedLanguage: "da", LanguageConfidence: 0.6}, nil)
	if e.Kind != KindDetectLanguage || e.Language != "da" || e.Metadata["confidence"] != 0.6 {
		t.Errorf("entry = %+v", e)
	}
}
