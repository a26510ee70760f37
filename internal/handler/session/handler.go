package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lingobridge/backend/internal/config"
	sessionService "github.com/lingobridge/backend/internal/service/session"
	"github.com/lingobridge/backend/pkg/utils"
)

// Handler exposes the session lifecycle endpoints.
type Handler struct {
	sessions *sessionService.Service
	authCfg  config.AuthConfig
}

// New creates the lifecycle handler.
func New(sessions *sessionService.Service, authCfg config.AuthConfig) *Handler {
	return &Handler{sessions: sessions, authCfg: authCfg}
}

// RegisterRoutes mounts the lifecycle routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Post("/sessions/join", h.handleJoinByCode)
	r.Post("/sessions/{sessionID}/patient", h.handleIssuePatientCredential)
	r.Post("/sessions/{sessionID}/end", h.handleEndSession)
}

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (h *Handler) requireProviderKey(w http.ResponseWriter, r *http.Request) bool {
	if !h.authCfg.IsProviderKey(bearerToken(r)) {
		utils.RespondError(w, http.StatusUnauthorized, "provider authentication required")
		return false
	}
	return true
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireProviderKey(w, r) {
		return
	}

	var payload struct {
		MedicalContext string `json:"medicalContext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.MedicalContext == "" {
		payload.MedicalContext = "general"
	}

	result, err := h.sessions.CreateSession(r.Context(), payload.MedicalContext)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleIssuePatientCredential(w http.ResponseWriter, r *http.Request) {
	if !h.requireProviderKey(w, r) {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Language == "" {
		utils.RespondError(w, http.StatusBadRequest, "language is required")
		return
	}

	grant, err := h.sessions.IssuePatientCredential(r.Context(), sessionID, payload.Language)
	switch {
	case errors.Is(err, sessionService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, sessionService.ErrPatientIssued):
		utils.RespondError(w, http.StatusConflict, "patient credential already issued")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue patient credential")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionCode string `json:"sessionCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionCode == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionCode is required")
		return
	}

	sess, err := h.sessions.ResolveSessionCode(r.Context(), payload.SessionCode)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session code not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"sessionId":      sess.ID,
		"credential":     sess.Patient.Credential,
		"language":       sess.Patient.Language,
		"medicalContext": sess.MedicalContext,
	})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	err := h.sessions.EndSession(r.Context(), sessionID, bearerToken(r))
	switch {
	case errors.Is(err, sessionService.ErrNotProvider):
		utils.RespondError(w, http.StatusForbidden, "only the session provider may end it")
		return
	case errors.Is(err, sessionService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
