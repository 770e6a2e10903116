// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     server
// Description: Websocket request dispatch
// License:     MIT
// ============================================================================

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/msto63/voicebridge/pkg/core/apperror"
	"github.com/msto63/voicebridge/pkg/core/logging"
)

const wsReadTimeout = 120 * time.Second

// WebSocket upgrader with permissive settings for local development
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves synthesis and recognition requests over a websocket.
// Requests on one connection are handled in order.
type WebSocketHandler struct {
	api    *Handler
	logger *logging.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(api *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		api:    api,
		logger: api.logger.With("component", "websocket"),
	}
}

// WSMessage represents a WebSocket request
type WSMessage struct {
	Type    string          `json:"type"` // "ping", "synthesize", "transcribe", "detect_language"
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSynthesizePayload is the payload of a synthesize message
type WSSynthesizePayload struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

// WSAudioPayload is the payload of transcribe and detect_language messages.
// Audio is base64 encoded in JSON.
type WSAudioPayload struct {
	Audio              []byte   `json:"audio"`
	Format             string   `json:"format,omitempty"`
	Language           string   `json:"language,omitempty"`
	SupportedLanguages []string `json:"supported_languages,omitempty"`
}

// WSResponse represents a WebSocket response
type WSResponse struct {
	Type    string      `json:"type"` // "pong", "<request>_result", "error"
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`

	// Error is set on a result whose payload is a failure envelope
	Error *WSErrorPayload `json:"error,omitempty"`
}

// WSErrorPayload represents an error payload
type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeHTTP handles WebSocket upgrade and connections
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	h.handleConnection(conn)
}

func (h *WebSocketHandler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	session := uuid.New().String()
	logger := h.logger.With("session", session)
	logger.Info("WebSocket connection established", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// base64 inflates uploads by a third
	conn.SetReadLimit(h.api.cfg.MaxUploadBytes * 4 / 3)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket read error", "error", err)
			} else {
				logger.Info("WebSocket connection closed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}

		h.send(conn, h.dispatch(ctx, msg))
	}
}

// dispatch runs one request and builds its response
func (h *WebSocketHandler) dispatch(ctx context.Context, msg WSMessage) WSResponse {
	switch msg.Type {
	case "ping":
		return WSResponse{Type: "pong", ID: msg.ID}

	case "synthesize":
		if h.api.tts == nil {
			return errorResponse(msg.ID, apperror.CodeServiceUnavailable, "TTS is not available")
		}
		var p WSSynthesizePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorResponse(msg.ID, apperror.CodeInvalidInput, "invalid synthesize payload")
		}
		result, err := h.api.tts.Synthesize(ctx, p.Text, p.Format)
		h.api.recordSynthesis(ctx, p.Text, result, err)
		if err != nil {
			return appErrorResponse(msg.ID, err)
		}
		return WSResponse{Type: "synthesize_result", ID: msg.ID, Payload: result}

	case "transcribe", "detect_language":
		if h.api.stt == nil {
			return errorResponse(msg.ID, apperror.CodeServiceUnavailable, "STT is not available")
		}
		var p WSAudioPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errorResponse(msg.ID, apperror.CodeInvalidInput, "invalid audio payload")
		}
		if p.Format == "" {
			p.Format = "wav"
		}
		upload := &audioUpload{Data: p.Audio, Format: p.Format, Language: p.Language, Supported: p.SupportedLanguages}

		if msg.Type == "transcribe" {
			result, err := h.api.stt.TranscribeBuffer(ctx, upload.Data, upload.Format, upload.Language)
			h.api.recordTranscription(ctx, upload, result, err)
			if err != nil && result == nil {
				return appErrorResponse(msg.ID, err)
			}
			return resultResponse("transcribe_result", msg.ID, result, err)
		}

		result, err := h.api.stt.DetectLanguage(ctx, upload.Data, upload.Format, upload.Supported)
		h.api.recordDetection(ctx, upload, result, err)
		if err != nil && result == nil {
			return appErrorResponse(msg.ID, err)
		}
		return resultResponse("detect_language_result", msg.ID, result, err)

	default:
		return errorResponse(msg.ID, apperror.CodeInvalidInput, "unknown message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, resp WSResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		h.logger.Error("WebSocket send error", "error", err)
	}
}

func errorResponse(id string, code apperror.Code, message string) WSResponse {
	return WSResponse{
		Type:    "error",
		ID:      id,
		Payload: WSErrorPayload{Code: code.String(), Message: message},
	}
}

func appErrorResponse(id string, err error) WSResponse {
	return errorResponse(id, errorCode(err), err.Error())
}

func resultResponse(typ, id string, result interface{}, err error) WSResponse {
	resp := WSResponse{Type: typ, ID: id, Payload: result}
	if err != nil {
		resp.Error = &WSErrorPayload{Code: errorCode(err).String(), Message: err.Error()}
	}
	return resp
}
