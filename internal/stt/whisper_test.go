package stt

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const whisperJSON = `{
  "result": {"language": "sv"},
  "transcription": [
    {
      "offsets": {"from": 0, "to": 1500},
      "text": " Hej och välkommen",
      "tokens": [
        {"text": "[_BEG_]", "p": 0.99},
        {"text": " Hej", "p": 0.8},
        {"text": " och", "p": 0.5},
        {"text": "[_TT_75]", "p": 0.4}
      ]
    },
    {
      "offsets": {"from": 1500, "to": 2000},
      "text": " hit.",
      "tokens": []
    }
  ]
}`

func TestParseWhisperJSON(t *testing.T) {
	segments, lang, err := parseWhisperJSON([]byte(whisperJSON))
	if err != nil {
		t.Fatalf("parseWhisperJSON() error = %v", err)
	}
	if lang != "sv" {
		t.Errorf("language = %q", lang)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %d", len(segments))
	}

	first := segments[0]
	if first.Text != " Hej och välkommen" || first.Start != 0 || first.End != 1.5 {
		t.Errorf("first = %+v", first)
	}
	want := (math.Log(0.8) + math.Log(0.5)) / 2
	if first.AvgLogprob == nil || math.Abs(*first.AvgLogprob-want) > 1e-9 {
		t.Errorf("AvgLogprob = %v, want %v", first.AvgLogprob, want)
	}
	if segments[1].AvgLogprob != nil {
		t.Error("segment without tokens should have no log-probability")
	}

	if _, _, err := parseWhisperJSON([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseDetectedLanguage(t *testing.T) {
	stderr := "whisper_init_from_file: loading model\nwhisper_full_with_state: auto-detected language: en (p = 0.973512)\n"
	lang, p, ok := parseDetectedLanguage(stderr)
	if !ok || lang != "en" || p != 0.973512 {
		t.Errorf("parseDetectedLanguage() = %q, %v, %v", lang, p, ok)
	}
	if _, _, ok := parseDetectedLanguage("no detection here"); ok {
		t.Error("expected no match")
	}
}

func TestWhisperCLI_BuildArgs(t *testing.T) {
	w := &WhisperCLI{cfg: WhisperCLIConfig{ModelPath: "models/ggml-base.bin", Threads: 4}}
	args := strings.Join(w.buildArgs("in.wav", "out", Options{BeamSize: 5, BestOf: 5}), " ")

	want := "-m models/ggml-base.bin -f in.wav -l auto -bs 5 -bo 5 -tp 0 -t 4 -mc 0 -ng -ojf -of out"
	if args != want {
		t.Errorf("args = %q\nwant   %q", args, want)
	}

	w.cfg.UseGPU = true
	args = strings.Join(w.buildArgs("in.wav", "out", Options{Language: "sv", BeamSize: 1, BestOf: 1, ConditionOnPreviousText: true}), " ")
	if strings.Contains(args, "-ng") || strings.Contains(args, "-mc") || !strings.Contains(args, "-l sv") {
		t.Errorf("args = %q", args)
	}
}

func TestModelPath(t *testing.T) {
	if got := ModelPath("/models", "small"); got != filepath.Join("/models", "ggml-small.bin") {
		t.Errorf("ModelPath() = %q", got)
	}
}

// fakeWhisper writes a JSON result next to the -of prefix and reports detection on stderr
const fakeWhisper = `#!/bin/sh
prefix=""
while [ $# -gt 0 ]; do
  case "$1" in
    -of) prefix="$2"; shift ;;
  esac
  shift
done
cat > "$prefix.json" <<'JSON'
{"result":{"language":"sv"},"transcription":[{"offsets":{"from":0,"to":900},"text":" Hej","tokens":[{"text":" Hej","p":0.9}]}]}
JSON
echo "whisper_full_with_state: auto-detected language: sv (p = 0.912000)" >&2
`

func TestWhisperCLI_Recognize(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "whisper-cli")
	os.WriteFile(binary, []byte(fakeWhisper), 0755)
	model := filepath.Join(dir, "ggml-base.bin")
	os.WriteFile(model, []byte("ggml"), 0644)

	w, err := NewWhisperCLI(WhisperCLIConfig{Binary: binary, ModelPath: model, TempDir: dir})
	if err != nil {
		t.Fatalf("NewWhisperCLI() error = %v", err)
	}

	segments, info, err := w.Recognize(context.Background(), make([]float32, 16000), Options{BeamSize: 1, BestOf: 1})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(segments) != 1 || segments[0].Text != " Hej" || segments[0].End != 0.9 {
		t.Errorf("segments = %+v", segments)
	}
	if info.Language != "sv" || info.LanguageProbability == nil || *info.LanguageProbability != 0.912 {
		t.Errorf("info = %+v", info)
	}
	if info.Duration != 1 {
		t.Errorf("Duration = %v", info.Duration)
	}

	// language given: no probability
	_, info, err = w.Recognize(context.Background(), make([]float32, 16000), Options{Language: "sv", BeamSize: 5, BestOf: 5})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if info.LanguageProbability != nil {
		t.Errorf("LanguageProbability = %v, want nil", *info.LanguageProbability)
	}
}

func TestWhisperCLI_Failure(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "whisper-cli")
	os.WriteFile(binary, []byte("#!/bin/sh\necho 'failed to load model' >&2\nexit 1\n"), 0755)
	model := filepath.Join(dir, "ggml-base.bin")
	os.WriteFile(model, []byte("ggml"), 0644)

	w, err := NewWhisperCLI(WhisperCLIConfig{Binary: binary, ModelPath: model})
	if err != nil {
		t.Fatalf("NewWhisperCLI() error = %v", err)
	}
	_, _, err = w.Recognize(context.Background(), make([]float32, 1600), Options{})
	if err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Errorf("error = %v, want stderr in message", err)
	}
}

func TestNewWhisperCLI_Errors(t *testing.T) {
	if _, err := NewWhisperCLI(WhisperCLIConfig{Binary: "voicebridge-no-whisper", ModelPath: "x"}); err == nil {
		t.Error("expected error for missing binary")
	}
	if _, err := NewWhisperCLI(WhisperCLIConfig{Binary: "sh", ModelPath: filepath.Join(t.TempDir(), "missing.bin")}); err == nil {
		t.Error("expected error for missing model")
	}
}
