package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lingobridge/backend/internal/auth"
	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

func newTestCredentials(t *testing.T) *auth.CredentialService {
	t.Helper()
	credentials, err := auth.NewCredentialService(auth.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewCredentialService err: %v", err)
	}
	return credentials
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), newTestCredentials(t))
}

func TestCreateSessionIssuesProviderCredential(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateSession(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if created.Session.ID == "" {
		t.Fatal("expected a session id")
	}
	if created.Session.Status != sessionModel.StatusActive {
		t.Fatalf("status = %s, want active", created.Session.Status)
	}
	if created.Session.MedicalContext != "cardiology" {
		t.Fatalf("medical context = %s", created.Session.MedicalContext)
	}
	if created.Credential == "" {
		t.Fatal("expected a provider credential")
	}

	got, err := svc.Get(context.Background(), created.Session.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if !got.Provider.Issued {
		t.Fatal("provider slot should be marked issued")
	}
	if got.Patient.Issued {
		t.Fatal("patient slot should not be issued yet")
	}
}

func TestIssuePatientCredentialOnceOnly(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateSession(context.Background(), "general")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	grant, err := svc.IssuePatientCredential(context.Background(), created.Session.ID, "es")
	if err != nil {
		t.Fatalf("IssuePatientCredential err: %v", err)
	}
	if grant.Credential == "" {
		t.Fatal("expected a patient credential")
	}
	if len(grant.SessionCode) != codeLength {
		t.Fatalf("session code %q has wrong length", grant.SessionCode)
	}
	for _, r := range grant.SessionCode {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("session code %q contains %q outside the alphabet", grant.SessionCode, r)
		}
	}

	if _, err := svc.IssuePatientCredential(context.Background(), created.Session.ID, "fr"); !errors.Is(err, ErrPatientIssued) {
		t.Fatalf("expected ErrPatientIssued on second issuance, got %v", err)
	}
}

func TestIssuePatientCredentialUnknownSession(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.IssuePatientCredential(context.Background(), "missing", "es")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolveSessionCode(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateSession(context.Background(), "general")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	grant, err := svc.IssuePatientCredential(context.Background(), created.Session.ID, "es")
	if err != nil {
		t.Fatalf("IssuePatientCredential err: %v", err)
	}

	// Typed codes are forgiving about case and padding.
	typed := "  " + strings.ToLower(grant.SessionCode) + " "
	sess, err := svc.ResolveSessionCode(context.Background(), typed)
	if err != nil {
		t.Fatalf("ResolveSessionCode err: %v", err)
	}
	if sess.ID != created.Session.ID {
		t.Fatalf("resolved wrong session: %s", sess.ID)
	}
	if sess.Patient.Credential == "" {
		t.Fatal("resolved session should carry the patient credential")
	}

	if _, err := svc.ResolveSessionCode(context.Background(), "ZZZZZZ"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestResolveSessionCodeRejectsEndedSession(t *testing.T) {
	svc := newTestService(t)
	created, _ := svc.CreateSession(context.Background(), "general")
	grant, _ := svc.IssuePatientCredential(context.Background(), created.Session.ID, "es")

	if err := svc.EndSessionBySystem(context.Background(), created.Session.ID); err != nil {
		t.Fatalf("EndSessionBySystem err: %v", err)
	}

	if _, err := svc.ResolveSessionCode(context.Background(), grant.SessionCode); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for ended session, got %v", err)
	}
}

func TestEndSessionRequiresProviderCredential(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateSession(context.Background(), "general")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	grant, err := svc.IssuePatientCredential(context.Background(), created.Session.ID, "es")
	if err != nil {
		t.Fatalf("IssuePatientCredential err: %v", err)
	}

	if err := svc.EndSession(context.Background(), created.Session.ID, grant.Credential); !errors.Is(err, ErrNotProvider) {
		t.Fatalf("patient credential must not end the session, got %v", err)
	}
	if err := svc.EndSession(context.Background(), created.Session.ID, "garbage"); !errors.Is(err, ErrNotProvider) {
		t.Fatalf("invalid credential must not end the session, got %v", err)
	}

	if err := svc.EndSession(context.Background(), created.Session.ID, created.Credential); err != nil {
		t.Fatalf("provider EndSession err: %v", err)
	}

	got, err := svc.Get(context.Background(), created.Session.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Status != sessionModel.StatusEnded {
		t.Fatalf("status = %s, want ended", got.Status)
	}
	if got.EndedAt.IsZero() {
		t.Fatal("expected EndedAt set")
	}
}

type countingNotifier struct {
	ended []string
}

func (n *countingNotifier) SessionEnded(sessionID string) {
	n.ended = append(n.ended, sessionID)
}

func TestEndSessionIdempotentAndNotifiesOnce(t *testing.T) {
	svc := newTestService(t)
	notifier := &countingNotifier{}
	svc.SetNotifier(notifier)

	created, err := svc.CreateSession(context.Background(), "general")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if err := svc.EndSession(context.Background(), created.Session.ID, created.Credential); err != nil {
		t.Fatalf("first EndSession err: %v", err)
	}
	if err := svc.EndSession(context.Background(), created.Session.ID, created.Credential); err != nil {
		t.Fatalf("second EndSession should be a no-op success, got %v", err)
	}

	if len(notifier.ended) != 1 {
		t.Fatalf("notifier fired %d times, want 1", len(notifier.ended))
	}
	if notifier.ended[0] != created.Session.ID {
		t.Fatalf("notified wrong session: %s", notifier.ended[0])
	}
}

func TestSetBoundMirrorsParticipantState(t *testing.T) {
	svc := newTestService(t)
	created, err := svc.CreateSession(context.Background(), "general")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if err := svc.SetBound(context.Background(), created.Session.ID, sessionModel.RoleProvider, true); err != nil {
		t.Fatalf("SetBound err: %v", err)
	}
	got, _ := svc.Get(context.Background(), created.Session.ID)
	if !got.Provider.Bound {
		t.Fatal("provider should be marked bound")
	}

	if err := svc.SetBound(context.Background(), created.Session.ID, sessionModel.RoleProvider, false); err != nil {
		t.Fatalf("SetBound err: %v", err)
	}
	got, _ = svc.Get(context.Background(), created.Session.ID)
	if got.Provider.Bound {
		t.Fatal("provider should be marked unbound")
	}
}

func TestGetUnknownSession(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
