package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/apperror"
	"github.com/msto63/voicebridge/pkg/core/health"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

type fakeTTS struct {
	result *tts.Result
	err    error

	text, format string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, format string) (*tts.Result, error) {
	f.text, f.format = text, format
	return f.result, f.err
}

func (f *fakeTTS) Status(ctx context.Context) *tts.Status {
	return &tts.Status{Available: true, Provider: "espeak", Version: "1.0.0"}
}

type fakeSTT struct {
	transcription *stt.TranscriptionResult
	detection     *stt.DetectionResult
	err           error

	buf       []byte
	format    string
	language  string
	supported []string
}

func (f *fakeSTT) DetectLanguage(ctx context.Context, buf []byte, format string, supported []string) (*stt.DetectionResult, error) {
	f.buf, f.format, f.supported = buf, format, supported
	return f.detection, f.err
}

func (f *fakeSTT) TranscribeBuffer(ctx context.Context, buf []byte, format, target string) (*stt.TranscriptionResult, error) {
	f.buf, f.format, f.language = buf, format, target
	return f.transcription, f.err
}

func (f *fakeSTT) Status() *stt.Status {
	return &stt.Status{Available: true, ModelSize: "base", Version: "2.0.0"}
}

func newTestServer(t *testing.T, deps Deps) (*httptest.Server, *history.Store) {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if deps.History == nil {
		deps.History = store
	}
	deps.Logger = logging.Nop()

	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 1 << 20
	srv := httptest.NewServer(New(cfg, deps).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	registry := health.NewRegistry("voicebridge", "test")
	registry.Register(health.AlwaysHealthy("http"))
	srv, _ := newTestServer(t, Deps{Health: registry})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var report health.Report
	decodeJSON(t, resp, &report)
	if report.Status != health.StatusHealthy || len(report.Checks) != 1 {
		t.Errorf("report = %+v", report)
	}

	registry.Register(health.PingCheck("history", func(ctx context.Context) error {
		return errors.New("database is locked")
	}))
	resp, _ = http.Get(srv.URL + "/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t, Deps{TTS: &fakeTTS{}, STT: &fakeSTT{}})

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	var status StatusResponse
	decodeJSON(t, resp, &status)

	if status.TTS == nil || status.TTS.Provider != "espeak" {
		t.Errorf("TTS = %+v", status.TTS)
	}
	if status.STT == nil || status.STT.Version != "2.0.0" {
		t.Errorf("STT = %+v", status.STT)
	}
	if !status.History {
		t.Error("History = false, want true")
	}
}

func TestSynthesize_Audio(t *testing.T) {
	audio := []byte("RIFF....WAVE")
	fake := &fakeTTS{result: &tts.Result{
		Audio: audio, Text: "Hej.", Format: "wav", Provider: "espeak", Voice: "swedish_female",
		WordCount: 1, EstimatedAudioDuration: 0.22,
	}}
	srv, store := newTestServer(t, Deps{TTS: fake})

	resp, err := http.Post(srv.URL+"/api/v1/tts/synthesize", "application/json",
		strings.NewReader(`{"text":"Hej","format":"wav"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Provider") != "espeak" || resp.Header.Get("X-Word-Count") != "1" {
		t.Errorf("headers = %v", resp.Header)
	}
	if resp.Header.Get("X-Estimated-Duration") != "0.22" {
		t.Errorf("X-Estimated-Duration = %q", resp.Header.Get("X-Estimated-Duration"))
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	if !bytes.Equal(body.Bytes(), audio) {
		t.Errorf("body = %q", body.Bytes())
	}
	if fake.text != "Hej" || fake.format != "wav" {
		t.Errorf("processor called with %q, %q", fake.text, fake.format)
	}

	entries, _ := store.List(context.Background(), history.Filter{})
	if len(entries) != 1 || entries[0].Kind != history.KindSynthesize || entries[0].AudioBytes != len(audio) {
		t.Errorf("history = %+v", entries)
	}
}

func TestSynthesize_JSON(t *testing.T) {
	fake := &fakeTTS{result: &tts.Result{Audio: []byte{1, 2, 3}, Format: "mp3", Provider: "piper"}}
	srv, _ := newTestServer(t, Deps{TTS: fake})

	resp, err := http.Post(srv.URL+"/api/v1/tts/synthesize", "application/json",
		strings.NewReader(`{"text":"Hej","format":"mp3","response":"json"}`))
	if err != nil {
		t.Fatal(err)
	}
	var result tts.Result
	decodeJSON(t, resp, &result)
	if !bytes.Equal(result.Audio, []byte{1, 2, 3}) || result.Provider != "piper" {
		t.Errorf("result = %+v", result)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name       string
		deps       Deps
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "tts unavailable",
			deps:       Deps{},
			body:       `{"text":"Hej"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "SERVICE_UNAVAILABLE",
		},
		{
			name:       "invalid body",
			deps:       Deps{TTS: &fakeTTS{}},
			body:       `{"text":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name: "empty text",
			deps: Deps{TTS: &fakeTTS{
				result: &tts.Result{Provider: "espeak", Error: "text is empty"},
				err:    apperror.New(apperror.CodeInvalidInput, "tts.Synthesize", "text is empty"),
			}},
			body:       `{"text":"  "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name: "engine failure",
			deps: Deps{TTS: &fakeTTS{
				result: &tts.Result{Provider: "piper", Error: "piper failed"},
				err:    apperror.New(apperror.CodeExternalService, "tts.piper", "piper failed"),
			}},
			body:       `{"text":"Hej"}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   "EXTERNAL_SERVICE_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.deps)
			resp, err := http.Post(srv.URL+"/api/v1/tts/synthesize", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var errResp ErrorResponse
			decodeJSON(t, resp, &errResp)
			if errResp.Code != tt.wantCode || errResp.Error == "" {
				t.Errorf("error = %+v, want code %s", errResp, tt.wantCode)
			}
		})
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	fake := &fakeSTT{transcription: &stt.TranscriptionResult{Text: "Hej.", Language: "sv", ModelUsed: "whisper-base"}}
	srv, store := newTestServer(t, Deps{STT: fake})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("audio", "clip.MP3")
	fw.Write(bytes.Repeat([]byte{0x55}, 2048))
	mw.WriteField("language", "sv")
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/v1/stt/transcribe", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var result stt.TranscriptionResult
	decodeJSON(t, resp, &result)

	if result.Text != "Hej." {
		t.Errorf("Text = %q", result.Text)
	}
	if fake.format != "mp3" || fake.language != "sv" || len(fake.buf) != 2048 {
		t.Errorf("processor called with format=%q language=%q len=%d", fake.format, fake.language, len(fake.buf))
	}

	entries, _ := store.List(context.Background(), history.Filter{Kind: history.KindTranscribe})
	if len(entries) != 1 || entries[0].Output != "Hej." || entries[0].Provider != "whisper-base" {
		t.Errorf("history = %+v", entries)
	}
}

func TestTranscribe_RawBody(t *testing.T) {
	fake := &fakeSTT{transcription: &stt.TranscriptionResult{Text: "Hello.", Language: "en"}}
	srv, _ := newTestServer(t, Deps{STT: fake})

	resp, err := http.Post(srv.URL+"/api/v1/stt/transcribe?language=en", "audio/ogg", bytes.NewReader(make([]byte, 4096)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fake.format != "ogg" || fake.language != "en" {
		t.Errorf("format=%q language=%q", fake.format, fake.language)
	}

	resp, _ = http.Post(srv.URL+"/api/v1/stt/transcribe?format=FLAC", "application/octet-stream", bytes.NewReader(make([]byte, 4096)))
	resp.Body.Close()
	if fake.format != "flac" {
		t.Errorf("format = %q, want flac", fake.format)
	}
}

func TestTranscribe_Failure(t *testing.T) {
	fake := &fakeSTT{
		transcription: &stt.TranscriptionResult{Language: "sv", Error: "audio buffer too small"},
		err:           apperror.New(apperror.CodeInvalidInput, "stt.TranscribeBuffer", "audio buffer too small"),
	}
	srv, store := newTestServer(t, Deps{STT: fake})

	resp, err := http.Post(srv.URL+"/api/v1/stt/transcribe", "audio/wav", bytes.NewReader([]byte("tiny")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if code := resp.Header.Get("X-Error-Code"); code != "INVALID_INPUT" {
		t.Errorf("X-Error-Code = %q", code)
	}
	var body stt.TranscriptionResult
	decodeJSON(t, resp, &body)
	if body.Language != "sv" || body.Error != "audio buffer too small" {
		t.Errorf("body = %+v, want failure envelope", body)
	}

	entries, _ := store.List(context.Background(), history.Filter{})
	if len(entries) != 1 || entries[0].Success || entries[0].Error != "audio buffer too small" {
		t.Errorf("history = %+v", entries)
	}
}

func TestDetectLanguage_FailureEnvelope(t *testing.T) {
	fake := &fakeSTT{
		detection: &stt.DetectionResult{
			DetectedLanguage:   "sv",
			LanguageConfidence: 0.5,
			AllLanguages:       []stt.LanguageScore{{Language: "sv", Confidence: 0.5}},
			Error:              "recognizer unreachable",
		},
		err: apperror.New(apperror.CodeExternalService, "stt.whisper", "recognizer unreachable"),
	}
	srv, _ := newTestServer(t, Deps{STT: fake})

	resp, err := http.Post(srv.URL+"/api/v1/stt/detect-language", "audio/wav", bytes.NewReader(make([]byte, 2048)))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != apperror.HTTPStatus(fake.err) {
		t.Errorf("status = %d, want %d", resp.StatusCode, apperror.HTTPStatus(fake.err))
	}
	var body stt.DetectionResult
	decodeJSON(t, resp, &body)
	if body.DetectedLanguage != "sv" || body.LanguageConfidence != 0.5 || len(body.AllLanguages) != 1 || body.Error == "" {
		t.Errorf("body = %+v, want failure envelope", body)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: "detect_language", ID: "7", Payload: mustJSON(t, WSAudioPayload{Audio: make([]byte, 2048)})}); err != nil {
		t.Fatal(err)
	}
	var ws struct {
		Type    string              `json:"type"`
		ID      string              `json:"id"`
		Payload stt.DetectionResult `json:"payload"`
		Error   *WSErrorPayload     `json:"error"`
	}
	if err := conn.ReadJSON(&ws); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ws.Type != "detect_language_result" || ws.ID != "7" || ws.Payload.DetectedLanguage != "sv" {
		t.Errorf("websocket response = %+v", ws)
	}
	if ws.Error == nil || ws.Error.Code != "EXTERNAL_SERVICE_ERROR" {
		t.Errorf("websocket error = %+v", ws.Error)
	}
}

func TestUploadTooLarge(t *testing.T) {
	fake := &fakeSTT{transcription: &stt.TranscriptionResult{}}
	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 1024
	h := NewHandler(cfg, Deps{STT: fake, Logger: logging.Nop()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stt/transcribe", bytes.NewReader(make([]byte, 4096)))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "exceeds 1024 bytes") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if fake.buf != nil {
		t.Error("processor should not be called for oversized uploads")
	}
}

func TestDetectLanguage(t *testing.T) {
	fake := &fakeSTT{detection: &stt.DetectionResult{
		DetectedLanguage:   "sv",
		LanguageConfidence: 0.9,
		AllLanguages:       []stt.LanguageScore{{Language: "sv", Confidence: 0.9}, {Language: "en", Confidence: 0.1}},
	}}
	srv, store := newTestServer(t, Deps{STT: fake})

	resp, err := http.Post(srv.URL+"/api/v1/stt/detect-language?supported_languages=sv,%20en,", "audio/wav",
		bytes.NewReader(make([]byte, 4096)))
	if err != nil {
		t.Fatal(err)
	}
	var result stt.DetectionResult
	decodeJSON(t, resp, &result)

	if result.DetectedLanguage != "sv" || len(result.AllLanguages) != 2 {
		t.Errorf("result = %+v", result)
	}
	if strings.Join(fake.supported, ",") != "sv,en" {
		t.Errorf("supported = %v", fake.supported)
	}

	entries, _ := store.List(context.Background(), history.Filter{Kind: history.KindDetectLanguage})
	if len(entries) != 1 || entries[0].Language != "sv" {
		t.Errorf("history = %+v", entries)
	}
}

func TestHistory(t *testing.T) {
	srv, store := newTestServer(t, Deps{})
	ctx := context.Background()

	now := time.Now()
	store.Record(ctx, &history.Entry{Kind: history.KindSynthesize, CreatedAt: now.Add(-2 * time.Second), Success: true})
	store.Record(ctx, &history.Entry{Kind: history.KindTranscribe, CreatedAt: now.Add(-time.Second), Success: true})
	store.Record(ctx, &history.Entry{Kind: history.KindTranscribe, CreatedAt: now, Success: true})

	tests := []struct {
		query      string
		wantStatus int
		wantTotal  int
	}{
		{"", http.StatusOK, 3},
		{"?kind=transcribe", http.StatusOK, 2},
		{"?limit=1", http.StatusOK, 1},
		{"?limit=2&offset=2", http.StatusOK, 1},
		{"?kind=bogus", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/v1/history" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				resp.Body.Close()
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				resp.Body.Close()
				return
			}
			var hr HistoryResponse
			decodeJSON(t, resp, &hr)
			if hr.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", hr.Total, tt.wantTotal)
			}
		})
	}
}

func TestHistory_Disabled(t *testing.T) {
	h := NewHandler(DefaultConfig(), Deps{Logger: logging.Nop()})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestWebSocket(t *testing.T) {
	fakeT := &fakeTTS{result: &tts.Result{Audio: []byte("wav"), Provider: "espeak", Format: "wav"}}
	fakeS := &fakeSTT{
		transcription: &stt.TranscriptionResult{Text: "Hej.", Language: "sv"},
		detection:     &stt.DetectionResult{DetectedLanguage: "sv", LanguageConfidence: 0.8},
	}
	srv, store := newTestServer(t, Deps{TTS: fakeT, STT: fakeS})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	roundTrip := func(msg interface{}) map[string]interface{} {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
		var resp map[string]interface{}
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return resp
	}

	resp := roundTrip(map[string]interface{}{"type": "ping", "id": "1"})
	if resp["type"] != "pong" || resp["id"] != "1" {
		t.Errorf("ping response = %v", resp)
	}

	resp = roundTrip(map[string]interface{}{"type": "synthesize", "id": "2", "payload": map[string]string{"text": "Hej"}})
	if resp["type"] != "synthesize_result" {
		t.Errorf("synthesize response = %v", resp)
	}
	if payload, _ := resp["payload"].(map[string]interface{}); payload["provider"] != "espeak" {
		t.Errorf("payload = %v", resp["payload"])
	}

	resp = roundTrip(WSMessage{Type: "transcribe", ID: "3", Payload: mustJSON(t, WSAudioPayload{Audio: make([]byte, 2048), Language: "sv"})})
	if resp["type"] != "transcribe_result" || fakeS.format != "wav" || len(fakeS.buf) != 2048 {
		t.Errorf("transcribe response = %v (format %q)", resp, fakeS.format)
	}

	resp = roundTrip(WSMessage{Type: "detect_language", Payload: mustJSON(t, WSAudioPayload{Audio: make([]byte, 2048), SupportedLanguages: []string{"sv"}})})
	if resp["type"] != "detect_language_result" || resp["id"] == "" {
		t.Errorf("detect response = %v", resp)
	}

	resp = roundTrip(map[string]interface{}{"type": "translate", "id": "5"})
	if resp["type"] != "error" {
		t.Errorf("unknown type response = %v", resp)
	}
	if payload, _ := resp["payload"].(map[string]interface{}); payload["code"] != "INVALID_INPUT" {
		t.Errorf("error payload = %v", resp["payload"])
	}

	entries, _ := store.List(context.Background(), history.Filter{})
	if len(entries) != 3 {
		t.Errorf("history entries = %d, want 3", len(entries))
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
