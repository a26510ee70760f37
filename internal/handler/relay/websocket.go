package relay

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lingobridge/backend/internal/auth"
	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
	sessionModel "github.com/lingobridge/backend/internal/model/session"
	"github.com/lingobridge/backend/internal/model/translation"
	relayService "github.com/lingobridge/backend/internal/service/relay"
	sessionService "github.com/lingobridge/backend/internal/service/session"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler terminates the realtime channel for session participants.
type WebSocketHandler struct {
	relay       *relayService.Relay
	sessions    *sessionService.Service
	credentials *auth.CredentialService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler wires the realtime endpoint to the relay core.
func NewWebSocketHandler(relay *relayService.Relay, sessions *sessionService.Service, credentials *auth.CredentialService) *WebSocketHandler {
	return &WebSocketHandler{
		relay:       relay,
		sessions:    sessions,
		credentials: credentials,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the realtime route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// wsConn serializes writes so the relay and the ping loop never interleave
// frames on the wire.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleWebSocket runs a connection attempt through Connecting, Authorizing,
// Bound, Closing, Closed. Credential problems reject before the upgrade;
// binding problems reject with an error frame right after it.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	claims, err := h.credentials.Validate(r.URL.Query().Get("token"), sessionID)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}
	role := sessionModel.Role(claims.Role)

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil || sess.Status != sessionModel.StatusActive {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	wc := &wsConn{conn: conn}

	bindingID, err := h.relay.Bind(r.Context(), sessionID, role, wc)
	if err != nil {
		log.Printf("[websocket] bind rejected session=%s role=%s: %v", sessionID, role, err)
		_ = wc.WriteJSON(translation.Envelope{
			Type:      translation.TypeError,
			SessionID: sessionID,
			Error:     "auth_error: " + err.Error(),
			Timestamp: time.Now().Unix(),
		})
		_ = wc.Close()
		return
	}
	defer func() {
		h.relay.Unbind(sessionID, role, bindingID)
		_ = wc.Close()
	}()

	log.Printf("[websocket] bound session=%s role=%s", sessionID, role)

	ctx := r.Context()
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, wc)

	_ = wc.WriteJSON(translation.Envelope{
		Type:      translation.TypeConnected,
		SessionID: sessionID,
		Role:      string(role),
		Timestamp: time.Now().Unix(),
	})

	for {
		var env translation.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error session=%s role=%s: %v", sessionID, role, err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))

		if env.SessionID != "" && env.SessionID != sessionID {
			h.sendError(wc, sessionID, "session mismatch")
			continue
		}

		if env.Quality != "" {
			h.relay.ReportState(sessionID, role, connectivityModel.State{
				Quality: connectivityModel.Quality(env.Quality),
			})
		}

		h.handleEnvelope(wc, sessionID, role, env)
	}
}

func (h *WebSocketHandler) handleEnvelope(wc *wsConn, sessionID string, role sessionModel.Role, env translation.Envelope) {
	switch env.Type {
	case translation.TypeTranslation:
		h.handleTranslation(wc, sessionID, role, env)
	case translation.TypeAck:
		if env.MessageID == "" {
			h.sendError(wc, sessionID, "ack requires messageId")
			return
		}
		h.relay.Ack(sessionID, env.MessageID)
	default:
		h.sendError(wc, sessionID, "unsupported message type: "+env.Type)
	}
}

func (h *WebSocketHandler) handleTranslation(wc *wsConn, sessionID string, role sessionModel.Role, env translation.Envelope) {
	if env.OriginalText == "" {
		h.sendError(wc, sessionID, "originalText is required")
		return
	}
	if env.SourceLanguage == "" || env.TargetLanguage == "" {
		h.sendError(wc, sessionID, "sourceLanguage and targetLanguage are required")
		return
	}

	messageID := env.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	event := translation.Event{
		ID:             messageID,
		SessionID:      sessionID,
		Origin:         string(role),
		OriginalText:   env.OriginalText,
		SourceLanguage: env.SourceLanguage,
		TargetLanguage: env.TargetLanguage,
		Timestamp:      time.Now().UTC(),
	}

	if err := h.relay.Submit(context.Background(), sessionID, role, event); err != nil {
		h.sendError(wc, sessionID, "submit failed: "+err.Error())
		return
	}

	// Acknowledge acceptance so offline-queue replay can advance.
	_ = wc.WriteJSON(translation.Envelope{
		Type:      translation.TypeAck,
		MessageID: messageID,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
	})
}

func (h *WebSocketHandler) sendError(wc *wsConn, sessionID, message string) {
	if err := wc.WriteJSON(translation.Envelope{
		Type:      translation.TypeError,
		SessionID: sessionID,
		Error:     message,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop keeps the connection alive under the read deadline.
func (h *WebSocketHandler) pingLoop(ctx context.Context, wc *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.Ping(); err != nil {
				return
			}
		}
	}
}
