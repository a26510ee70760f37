package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingobridge/backend/internal/auth"
	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
	ErrPatientIssued   = errors.New("patient credential already issued")
	ErrNotProvider     = errors.New("caller is not the session provider")
	ErrCodeNotFound    = errors.New("session code not found")
)

// Notifier is how the manager tells the relay a session is gone. The relay
// registers itself after construction to avoid a package cycle.
type Notifier interface {
	SessionEnded(sessionID string)
}

// Service owns the lifecycle of translation sessions. All mutations are
// serialized here; the relay only reads.
type Service struct {
	mu          sync.Mutex
	store       Store
	credentials *auth.CredentialService
	notifier    Notifier
}

// NewService wires the manager to its store and credential issuer.
func NewService(store Store, credentials *auth.CredentialService) *Service {
	return &Service{store: store, credentials: credentials}
}

// SetNotifier registers the relay for session_closed fan-out.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// CreateResult is what a provider gets back from CreateSession.
type CreateResult struct {
	Session    sessionModel.Session `json:"session"`
	Credential string               `json:"credential"`
}

// CreateSession provisions a session and the provider credential for it.
// Provider authentication happens at the handler edge; by the time this runs
// the caller is a trusted provider.
func (s *Service) CreateSession(ctx context.Context, medicalContext string) (CreateResult, error) {
	sess := sessionModel.Session{
		ID:             uuid.NewString(),
		MedicalContext: medicalContext,
		Status:         sessionModel.StatusActive,
		CreatedAt:      time.Now().UTC(),
		Provider:       sessionModel.Participant{Role: sessionModel.RoleProvider, Issued: true},
		Patient:        sessionModel.Participant{Role: sessionModel.RolePatient},
	}

	credential, err := s.credentials.Issue(sess.ID, sessionModel.RoleProvider, "")
	if err != nil {
		return CreateResult{}, fmt.Errorf("issue provider credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Create(ctx, &sess); err != nil {
		return CreateResult{}, fmt.Errorf("store session: %w", err)
	}

	log.Printf("[session] created id=%s context=%s", sess.ID, medicalContext)
	return CreateResult{Session: sess, Credential: credential}, nil
}

// PatientGrant is what IssuePatientCredential returns: the bearer credential
// plus the short code the patient can type to join.
type PatientGrant struct {
	Credential  string `json:"credential"`
	SessionCode string `json:"sessionCode"`
}

// IssuePatientCredential binds the patient slot with a language preference.
// A second issuance for the same session is a conflict.
func (s *Service) IssuePatientCredential(ctx context.Context, sessionID, language string) (PatientGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return PatientGrant{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return PatientGrant{}, ErrSessionNotFound
	}
	if sess.Status != sessionModel.StatusActive {
		return PatientGrant{}, ErrSessionNotFound
	}
	if sess.Patient.Issued {
		return PatientGrant{}, ErrPatientIssued
	}

	credential, err := s.credentials.Issue(sess.ID, sessionModel.RolePatient, language)
	if err != nil {
		return PatientGrant{}, fmt.Errorf("issue patient credential: %w", err)
	}

	code, err := newSessionCode()
	if err != nil {
		return PatientGrant{}, fmt.Errorf("generate session code: %w", err)
	}

	sess.Patient.Issued = true
	sess.Patient.Language = language
	sess.Patient.Credential = credential
	sess.SessionCode = code

	if err := s.store.Update(ctx, sess); err != nil {
		return PatientGrant{}, fmt.Errorf("store session: %w", err)
	}

	log.Printf("[session] patient credential issued id=%s code=%s lang=%s", sess.ID, code, language)
	return PatientGrant{Credential: credential, SessionCode: code}, nil
}

// ResolveSessionCode maps a typed code back to its active session.
func (s *Service) ResolveSessionCode(ctx context.Context, code string) (sessionModel.Session, error) {
	sess, err := s.store.GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return sessionModel.Session{}, fmt.Errorf("load session by code: %w", err)
	}
	if sess == nil || sess.Status != sessionModel.StatusActive {
		return sessionModel.Session{}, ErrCodeNotFound
	}
	return *sess, nil
}

// Get returns the session or ErrSessionNotFound.
func (s *Service) Get(ctx context.Context, sessionID string) (sessionModel.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return sessionModel.Session{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return sessionModel.Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// SetBound mirrors the relay's connection handle state onto the stored
// participant so lifecycle reads reflect who is connected.
func (s *Service) SetBound(ctx context.Context, sessionID string, role sessionModel.Role, bound bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	sess.ParticipantFor(role).Bound = bound
	return s.store.Update(ctx, sess)
}

// EndSession retires a session. Only the bound provider may end it; ending an
// already-ended session is a no-op success so retries stay safe.
func (s *Service) EndSession(ctx context.Context, sessionID, callerCredential string) error {
	claims, err := s.credentials.Validate(callerCredential, sessionID)
	if err != nil {
		return ErrNotProvider
	}
	if claims.Role != string(sessionModel.RoleProvider) {
		return ErrNotProvider
	}
	return s.endSession(ctx, sessionID)
}

// EndSessionBySystem retires a session without a caller credential. Used by
// the relay when the provider stays disconnected past the grace period.
func (s *Service) EndSessionBySystem(ctx context.Context, sessionID string) error {
	return s.endSession(ctx, sessionID)
}

func (s *Service) endSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.Status == sessionModel.StatusEnded {
		s.mu.Unlock()
		return nil
	}

	sess.Status = sessionModel.StatusEnded
	sess.EndedAt = time.Now().UTC()
	if err := s.store.Update(ctx, sess); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("store session: %w", err)
	}

	notifier := s.notifier
	s.mu.Unlock()

	log.Printf("[session] ended id=%s", sessionID)
	if notifier != nil {
		notifier.SessionEnded(sessionID)
	}
	return nil
}
