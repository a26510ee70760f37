package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lingobridge/backend/internal/auth"
	sessionModel "github.com/lingobridge/backend/internal/model/session"
	"github.com/lingobridge/backend/internal/model/translation"
	relayService "github.com/lingobridge/backend/internal/service/relay"
	sessionService "github.com/lingobridge/backend/internal/service/session"
	"github.com/lingobridge/backend/internal/service/translator"
)

type fakeConn struct {
	mu         sync.Mutex
	frames     []translation.Envelope
	closed     bool
	failWrites bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	env, ok := v.(translation.Envelope)
	if !ok {
		return errors.New("unexpected frame type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	if f.failWrites {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeConn) setFailWrites(fail bool) {
	f.mu.Lock()
	f.failWrites = fail
	f.mu.Unlock()
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) framesOfType(frameType string) []translation.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []translation.Envelope
	for _, env := range f.frames {
		if env.Type == frameType {
			out = append(out, env)
		}
	}
	return out
}

// waitFrames polls until at least n frames of the type arrived.
func (f *fakeConn) waitFrames(t *testing.T, frameType string, n int) []translation.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := f.framesOfType(frameType); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q frames, got %d", n, frameType, len(f.framesOfType(frameType)))
	return nil
}

type stubTranslator struct {
	name string
	fn   func(ctx context.Context, req translator.Request) (translator.Result, error)
}

func (s *stubTranslator) Name() string { return s.name }

func (s *stubTranslator) Translate(ctx context.Context, req translator.Request) (translator.Result, error) {
	return s.fn(ctx, req)
}

func echoTranslator(name string) *stubTranslator {
	return &stubTranslator{
		name: name,
		fn: func(_ context.Context, req translator.Request) (translator.Result, error) {
			return translator.Result{
				TranslatedText: "[" + req.TargetLanguage + "] " + req.Text,
				Confidence:     translation.ConfidenceHigh,
			}, nil
		},
	}
}

type fixture struct {
	relay    *relayService.Relay
	sessions *sessionService.Service
	session  sessionModel.Session
}

func setup(t *testing.T, remote, edge translator.Translator, opts relayService.Options) *fixture {
	t.Helper()
	return setupWithStore(t, sessionService.NewMemoryStore(), remote, edge, opts)
}

func setupWithStore(t *testing.T, store sessionService.Store, remote, edge translator.Translator, opts relayService.Options) *fixture {
	t.Helper()

	credentials, err := auth.NewCredentialService(auth.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewCredentialService err: %v", err)
	}

	sessions := sessionService.NewService(store, credentials)
	r := relayService.New(sessions, remote, edge, opts)
	sessions.SetNotifier(r)

	created, err := sessions.CreateSession(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := sessions.IssuePatientCredential(context.Background(), created.Session.ID, "es"); err != nil {
		t.Fatalf("IssuePatientCredential err: %v", err)
	}

	return &fixture{relay: r, sessions: sessions, session: created.Session}
}

func (fx *fixture) bind(t *testing.T, role sessionModel.Role) (*fakeConn, uint64) {
	t.Helper()
	conn := &fakeConn{}
	id, err := fx.relay.Bind(context.Background(), fx.session.ID, role, conn)
	if err != nil {
		t.Fatalf("Bind %s err: %v", role, err)
	}
	return conn, id
}

func submitText(t *testing.T, fx *fixture, role sessionModel.Role, text string) string {
	t.Helper()
	event := translation.Event{
		ID:             uuid.NewString(),
		OriginalText:   text,
		SourceLanguage: "en",
		TargetLanguage: "es",
		Timestamp:      time.Now().UTC(),
	}
	if err := fx.relay.Submit(context.Background(), fx.session.ID, role, event); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	return event.ID
}

func TestRoundTripToPeer(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	submitText(t, fx, sessionModel.RoleProvider, "Hello, how are you feeling today?")

	frames := patientConn.waitFrames(t, translation.TypeTranslation, 1)
	got := frames[0]
	if got.OriginalText != "Hello, how are you feeling today?" {
		t.Fatalf("unexpected original text: %q", got.OriginalText)
	}
	if got.SourceLanguage != "en" || got.TargetLanguage != "es" {
		t.Fatalf("unexpected language pair: %s->%s", got.SourceLanguage, got.TargetLanguage)
	}
	if got.TranslatedText == "" {
		t.Fatal("expected non-empty translated text")
	}
}

func TestResultsDeliverInSubmissionOrder(t *testing.T) {
	// The first submission translates slowly, the second instantly. The
	// peer must still see them in submission order.
	var calls int
	var mu sync.Mutex
	remote := &stubTranslator{
		name: "remote",
		fn: func(_ context.Context, req translator.Request) (translator.Result, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				time.Sleep(80 * time.Millisecond)
			}
			return translator.Result{TranslatedText: "t:" + req.Text, Confidence: translation.ConfidenceHigh}, nil
		},
	}

	fx := setup(t, remote, echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	firstID := submitText(t, fx, sessionModel.RoleProvider, "a slow one")
	secondID := submitText(t, fx, sessionModel.RoleProvider, "a fast one")

	frames := patientConn.waitFrames(t, translation.TypeTranslation, 2)
	if frames[0].MessageID != firstID || frames[1].MessageID != secondID {
		t.Fatalf("results overtook each other: got %s then %s", frames[0].MessageID, frames[1].MessageID)
	}
}

// stallStore delays bind-state mirror writes so tests can widen the window
// between a handle going live and the session record catching up.
type stallStore struct {
	sessionService.Store
	mu    sync.Mutex
	delay time.Duration
}

func (s *stallStore) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *stallStore) Update(ctx context.Context, sess *sessionModel.Session) error {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return s.Store.Update(ctx, sess)
}

func TestRebindReplayKeepsSubmissionOrder(t *testing.T) {
	store := &stallStore{Store: sessionService.NewMemoryStore()}
	fx := setupWithStore(t, store, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)

	olderID := submitText(t, fx, sessionModel.RoleProvider, "older message")

	// Let the translation finish into the absent patient's outbox.
	time.Sleep(50 * time.Millisecond)

	// Stall the session-record write that follows the rebind, then submit a
	// fresh message while the rebind is still in flight. The replayed result
	// must reach the peer before the fresh one.
	store.setDelay(150 * time.Millisecond)

	patientConn := &fakeConn{}
	bound := make(chan error, 1)
	go func() {
		_, err := fx.relay.Bind(context.Background(), fx.session.ID, sessionModel.RolePatient, patientConn)
		bound <- err
	}()

	time.Sleep(40 * time.Millisecond)
	newerID := submitText(t, fx, sessionModel.RoleProvider, "newer message")

	if err := <-bound; err != nil {
		t.Fatalf("Bind err: %v", err)
	}

	frames := patientConn.waitFrames(t, translation.TypeTranslation, 2)
	if frames[0].MessageID != olderID || frames[1].MessageID != newerID {
		t.Fatalf("replay reordered: got %s then %s, want %s then %s",
			frames[0].MessageID, frames[1].MessageID, olderID, newerID)
	}
}

func TestWriteFailureRetryKeepsOrder(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	patientConn.setFailWrites(true)
	firstID := submitText(t, fx, sessionModel.RoleProvider, "first attempt fails")

	// The failed write must leave the entry queued, not dropped.
	time.Sleep(50 * time.Millisecond)
	if state, ok := fx.relay.EventState(fx.session.ID, firstID); !ok || state != translation.StateTranslated {
		t.Fatalf("expected translated awaiting retry, got %s ok=%v", state, ok)
	}

	patientConn.setFailWrites(false)
	secondID := submitText(t, fx, sessionModel.RoleProvider, "second goes through")

	frames := patientConn.waitFrames(t, translation.TypeTranslation, 2)
	if frames[0].MessageID != firstID || frames[1].MessageID != secondID {
		t.Fatalf("retry reordered: got %s then %s, want %s then %s",
			frames[0].MessageID, frames[1].MessageID, firstID, secondID)
	}
}

func TestSecondBindRejectedUntilUnbind(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	_, firstID := fx.bind(t, sessionModel.RoleProvider)

	if _, err := fx.relay.Bind(context.Background(), fx.session.ID, sessionModel.RoleProvider, &fakeConn{}); !errors.Is(err, relayService.ErrRoleBound) {
		t.Fatalf("expected ErrRoleBound, got %v", err)
	}

	fx.relay.Unbind(fx.session.ID, sessionModel.RoleProvider, firstID)

	if _, err := fx.relay.Bind(context.Background(), fx.session.ID, sessionModel.RoleProvider, &fakeConn{}); err != nil {
		t.Fatalf("reconnect after unbind should supersede, got %v", err)
	}
}

func TestPeerOfflineResultQueuedThenFlushedOnBind(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)

	id := submitText(t, fx, sessionModel.RoleProvider, "queued while patient away")

	// Give the translation time to complete while the patient is unbound.
	time.Sleep(50 * time.Millisecond)

	patientConn, _ := fx.bind(t, sessionModel.RolePatient)
	frames := patientConn.waitFrames(t, translation.TypeTranslation, 1)
	if frames[0].MessageID != id {
		t.Fatalf("unexpected message id: %s", frames[0].MessageID)
	}

	state, ok := fx.relay.EventState(fx.session.ID, id)
	if !ok || state != translation.StateTranslated {
		t.Fatalf("expected translated before ack, got %s ok=%v", state, ok)
	}

	fx.relay.Ack(fx.session.ID, id)
	state, _ = fx.relay.EventState(fx.session.ID, id)
	if state != translation.StateDelivered {
		t.Fatalf("expected delivered after ack, got %s", state)
	}
}

func TestOutboxOverflowFailsOldestAndNotifiesSender(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{OutboxCapacity: 2})
	providerConn, _ := fx.bind(t, sessionModel.RoleProvider)

	first := submitText(t, fx, sessionModel.RoleProvider, "one")
	time.Sleep(30 * time.Millisecond)
	submitText(t, fx, sessionModel.RoleProvider, "two")
	time.Sleep(30 * time.Millisecond)
	submitText(t, fx, sessionModel.RoleProvider, "three")

	failures := providerConn.waitFrames(t, translation.TypeTranslationFailed, 1)
	if failures[0].MessageID != first {
		t.Fatalf("expected oldest message %s to fail, got %s", first, failures[0].MessageID)
	}

	state, _ := fx.relay.EventState(fx.session.ID, first)
	if state != translation.StateFailed {
		t.Fatalf("expected failed state for evicted event, got %s", state)
	}
}

func TestTranslationFailureNoticeGoesToSenderOnly(t *testing.T) {
	failing := &stubTranslator{
		name: "edge",
		fn: func(context.Context, translator.Request) (translator.Result, error) {
			return translator.Result{}, errors.New("model unavailable")
		},
	}

	// No remote configured: the edge path is the only one and it fails.
	fx := setup(t, nil, failing, relayService.Options{})
	providerConn, _ := fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	submitText(t, fx, sessionModel.RoleProvider, "this will fail")

	providerConn.waitFrames(t, translation.TypeTranslationFailed, 1)
	if frames := patientConn.framesOfType(translation.TypeTranslation); len(frames) != 0 {
		t.Fatalf("peer should not receive failed translations, got %d", len(frames))
	}
}

func TestRemoteFailureFallsBackToEdge(t *testing.T) {
	failingRemote := &stubTranslator{
		name: "remote",
		fn: func(context.Context, translator.Request) (translator.Result, error) {
			return translator.Result{}, errors.New("upstream 500")
		},
	}

	fx := setup(t, failingRemote, echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	submitText(t, fx, sessionModel.RoleProvider, "fall back please")

	frames := patientConn.waitFrames(t, translation.TypeTranslation, 1)
	if frames[0].TranslatedText == "" {
		t.Fatal("expected edge fallback to produce a translation")
	}
}

func TestEndSessionBroadcastsOnceAndIsIdempotent(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	providerConn, _ := fx.bind(t, sessionModel.RoleProvider)
	patientConn, _ := fx.bind(t, sessionModel.RolePatient)

	if err := fx.sessions.EndSessionBySystem(context.Background(), fx.session.ID); err != nil {
		t.Fatalf("EndSessionBySystem err: %v", err)
	}
	// Idempotent retry must not duplicate the broadcast.
	if err := fx.sessions.EndSessionBySystem(context.Background(), fx.session.ID); err != nil {
		t.Fatalf("second EndSessionBySystem err: %v", err)
	}

	for _, conn := range []*fakeConn{providerConn, patientConn} {
		closed := conn.framesOfType(translation.TypeSessionClosed)
		if len(closed) != 1 {
			t.Fatalf("expected exactly one session_closed, got %d", len(closed))
		}
	}

	if _, err := fx.relay.Bind(context.Background(), fx.session.ID, sessionModel.RoleProvider, &fakeConn{}); !errors.Is(err, relayService.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive after end, got %v", err)
	}
}

func TestSubmitRequiresBoundRole(t *testing.T) {
	fx := setup(t, echoTranslator("remote"), echoTranslator("edge"), relayService.Options{})
	fx.bind(t, sessionModel.RolePatient)

	event := translation.Event{ID: uuid.NewString(), OriginalText: "hi", SourceLanguage: "en", TargetLanguage: "es"}
	err := fx.relay.Submit(context.Background(), fx.session.ID, sessionModel.RoleProvider, event)
	if !errors.Is(err, relayService.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}
