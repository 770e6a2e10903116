package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/msto63/voicebridge/internal/history"
	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/apperror"
	"github.com/msto63/voicebridge/pkg/core/health"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// SynthesizeRequest is the body of POST /api/v1/tts/synthesize
type SynthesizeRequest struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
	// Response selects "audio" (default, raw bytes) or "json"
	Response string `json:"response,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusResponse combines the processor status reports
type StatusResponse struct {
	Service string      `json:"service"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	TTS     *tts.Status `json:"tts,omitempty"`
	STT     *stt.Status `json:"stt,omitempty"`
	History bool        `json:"history"`
}

// HistoryResponse lists recorded requests
type HistoryResponse struct {
	Entries []*history.Entry `json:"entries"`
	Total   int              `json:"total"`
}

// Handler handles HTTP requests
type Handler struct {
	cfg       Config
	tts       Synthesizer
	stt       Transcriber
	history   HistoryStore
	health    *health.Registry
	logger    *logging.Logger
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(cfg Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.New("server")
	}
	registry := deps.Health
	if registry == nil {
		registry = health.NewRegistry("voicebridge", cfg.Version)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	return &Handler{
		cfg:       cfg,
		tts:       deps.TTS,
		stt:       deps.STT,
		history:   deps.History,
		health:    registry,
		logger:    logger,
		startTime: time.Now(),
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service: "voicebridge",
		Version: h.cfg.Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		History: h.history != nil,
	}
	if h.tts != nil {
		resp.TTS = h.tts.Status(r.Context())
	}
	if h.stt != nil {
		resp.STT = h.stt.Status()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if h.tts == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperror.CodeServiceUnavailable, "TTS is not available")
		return
	}

	var req SynthesizeRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, apperror.CodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	result, err := h.tts.Synthesize(r.Context(), req.Text, req.Format)
	h.recordSynthesis(r.Context(), req.Text, result, err)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	if req.Response == "json" || wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", audioContentType(result.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.Header().Set("X-Provider", result.Provider)
	w.Header().Set("X-Voice", result.Voice)
	w.Header().Set("X-Word-Count", strconv.Itoa(result.WordCount))
	w.Header().Set("X-Estimated-Duration", strconv.FormatFloat(result.EstimatedAudioDuration, 'f', 2, 64))
	w.Header().Set("X-Cached", strconv.FormatBool(result.Cached))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.stt == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperror.CodeServiceUnavailable, "STT is not available")
		return
	}

	upload, err := h.readAudio(w, r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	result, err := h.stt.TranscribeBuffer(r.Context(), upload.Data, upload.Format, upload.Language)
	h.recordTranscription(r.Context(), upload, result, err)
	if err != nil && result == nil {
		h.writeAppError(w, err)
		return
	}
	h.writeResult(w, result, err)
}

func (h *Handler) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	if h.stt == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperror.CodeServiceUnavailable, "STT is not available")
		return
	}

	upload, err := h.readAudio(w, r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	result, err := h.stt.DetectLanguage(r.Context(), upload.Data, upload.Format, upload.Supported)
	h.recordDetection(r.Context(), upload, result, err)
	if err != nil && result == nil {
		h.writeAppError(w, err)
		return
	}
	h.writeResult(w, result, err)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, apperror.CodeServiceUnavailable, "history is disabled")
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	entries, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("History query failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, apperror.CodeInternal, "failed to query history")
		return
	}
	h.writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries, Total: len(entries)})
}

func parseHistoryFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	filter := history.Filter{Limit: defaultHistoryLimit}

	switch kind := history.Kind(q.Get("kind")); kind {
	case "", history.KindSynthesize, history.KindTranscribe, history.KindDetectLanguage:
		filter.Kind = kind
	default:
		return filter, apperror.Newf(apperror.CodeInvalidInput, "server.history", "unknown kind %q", kind)
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, apperror.Newf(apperror.CodeInvalidInput, "server.history", "invalid limit %q", v)
		}
		filter.Limit = min(limit, maxHistoryLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, apperror.Newf(apperror.CodeInvalidInput, "server.history", "invalid offset %q", v)
		}
		filter.Offset = offset
	}
	return filter, nil
}

// audioUpload is an audio buffer with the request parameters sent alongside it
type audioUpload struct {
	Data      []byte
	Format    string
	Language  string
	Supported []string
}

// readAudio accepts either a multipart form with an "audio" file or a raw
// body. Parameters come from form fields or the query string.
func (h *Handler) readAudio(w http.ResponseWriter, r *http.Request) (*audioUpload, error) {
	const op = "server.readAudio"
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	upload := &audioUpload{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
			return nil, uploadError(op, err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidInput, op, "missing audio file")
		}
		defer file.Close()

		if upload.Data, err = io.ReadAll(file); err != nil {
			return nil, uploadError(op, err)
		}
		upload.Format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, uploadError(op, err)
		}
		upload.Data = data
		upload.Format = formatFromContentType(mediaType)
	}

	if f := r.FormValue("format"); f != "" {
		upload.Format = strings.ToLower(f)
	}
	if upload.Format == "" {
		upload.Format = "wav"
	}
	upload.Language = r.FormValue("language")
	upload.Supported = splitList(r.FormValue("supported_languages"))

	return upload, nil
}

func uploadError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.Newf(apperror.CodeInvalidInput, op, "audio upload exceeds %d bytes", tooLarge.Limit)
	}
	return apperror.Wrap(err, apperror.CodeInvalidInput, op, "failed to read audio upload")
}

func formatFromContentType(mediaType string) string {
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	default:
		return ""
	}
}

func audioContentType(format string) string {
	switch format {
	case tts.FormatMP3:
		return "audio/mpeg"
	case tts.FormatAIFF:
		return "audio/aiff"
	default:
		return "audio/wav"
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// History recording

func (h *Handler) record(ctx context.Context, entry *history.Entry) {
	if h.history == nil {
		return
	}
	if err := h.history.Record(ctx, entry); err != nil {
		h.logger.Warn("Failed to record history", "kind", entry.Kind, "error", err)
	}
}

func (h *Handler) recordSynthesis(ctx context.Context, text string, result *tts.Result, err error) {
	h.record(ctx, history.FromSynthesis(text, result, err))
}

func (h *Handler) recordTranscription(ctx context.Context, upload *audioUpload, result *stt.TranscriptionResult, err error) {
	h.record(ctx, history.FromTranscription(len(upload.Data), upload.Format, upload.Language, result, err))
}

func (h *Handler) recordDetection(ctx context.Context, upload *audioUpload, result *stt.DetectionResult, err error) {
	h.record(ctx, history.FromDetection(len(upload.Data), upload.Format, result, err))
}

// Helper methods

func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code apperror.Code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code.String()})
}

// writeAppError maps a coded error onto its HTTP status
// writeResult sends a recognition result. A failed operation still returns its
// fallback envelope, with the mapped status and the code in X-Error-Code.
func (h *Handler) writeResult(w http.ResponseWriter, result interface{}, err error) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, result)
		return
	}
	w.Header().Set("X-Error-Code", errorCode(err).String())
	h.writeJSON(w, apperror.HTTPStatus(err), result)
}

func errorCode(err error) apperror.Code {
	code := apperror.GetCode(err)
	if code == apperror.CodeUnknown {
		code = apperror.CodeInternal
	}
	return code
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperror.HTTPStatus(err), errorCode(err), err.Error())
}
