package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
	sessionModel "github.com/lingobridge/backend/internal/model/session"
	"github.com/lingobridge/backend/internal/model/translation"
	sessionService "github.com/lingobridge/backend/internal/service/session"
	"github.com/lingobridge/backend/internal/service/translator"
)

var (
	ErrSessionNotActive = errors.New("session not active")
	ErrRoleBound        = errors.New("role already bound to a live connection")
	ErrNotBound         = errors.New("role is not bound")
)

const (
	// DefaultOutboxCapacity bounds how many translated-but-undelivered
	// results wait for an offline peer before the oldest is failed.
	DefaultOutboxCapacity = 64

	// DefaultProviderGrace is how long a session survives its provider's
	// connection being gone before the relay retires it.
	DefaultProviderGrace = 2 * time.Minute
)

// Conn is the transport handle the relay writes to. The WebSocket handler
// implements it with a write-serialized connection; tests use fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Relay routes translation traffic between the two bound endpoints of each
// session. One Relay serves every session; per-session state lives in rooms.
type Relay struct {
	mu       sync.Mutex
	rooms    map[string]*room
	sessions *sessionService.Service

	remote translator.Translator
	edge   translator.Translator

	outboxCapacity int
	providerGrace  time.Duration
}

// Options tune relay behavior; zero values take defaults.
type Options struct {
	OutboxCapacity int
	ProviderGrace  time.Duration
}

// New builds the relay. remote may be nil (edge-only deployments).
func New(sessions *sessionService.Service, remote, edge translator.Translator, opts Options) *Relay {
	capacity := opts.OutboxCapacity
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	grace := opts.ProviderGrace
	if grace <= 0 {
		grace = DefaultProviderGrace
	}

	return &Relay{
		rooms:          make(map[string]*room),
		sessions:       sessions,
		remote:         remote,
		edge:           edge,
		outboxCapacity: capacity,
		providerGrace:  grace,
	}
}

type binding struct {
	conn Conn
	id   uint64
}

type pendingResult struct {
	event *translation.Event
	err   error
}

type outboxEntry struct {
	envelope translation.Envelope
	eventID  string
	sender   sessionModel.Role
}

// room is the per-session routing state. Everything inside is guarded by
// room.mu; translations run outside the lock and re-enter to deliver.
type room struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	bindings  map[sessionModel.Role]*binding
	nextBind  uint64
	lastState map[sessionModel.Role]connectivityModel.State

	// Per-sender submission ordering: results release strictly in the order
	// their requests were submitted, even when translations finish early.
	nextSeq     map[sessionModel.Role]uint64
	nextRelease map[sessionModel.Role]uint64
	completed   map[sessionModel.Role]map[uint64]pendingResult
	draining    map[sessionModel.Role]bool

	// Per-recipient outbox for translated results awaiting a live handle.
	// Delivery always goes through here; flushing gates one drainer per
	// recipient so replayed and fresh results cannot overtake each other.
	outbox   map[sessionModel.Role][]outboxEntry
	flushing map[sessionModel.Role]bool

	// Delivered-but-unacknowledged events, keyed by message id.
	unacked map[string]*translation.Event

	events map[string]*translation.Event

	providerTimer *time.Timer
}

func (r *Relay) getOrCreateRoom(sessionID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[sessionID]; ok {
		return rm
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm := &room{
		id:          sessionID,
		ctx:         ctx,
		cancel:      cancel,
		bindings:    make(map[sessionModel.Role]*binding),
		lastState:   make(map[sessionModel.Role]connectivityModel.State),
		nextSeq:     make(map[sessionModel.Role]uint64),
		nextRelease: make(map[sessionModel.Role]uint64),
		completed:   make(map[sessionModel.Role]map[uint64]pendingResult),
		draining:    make(map[sessionModel.Role]bool),
		outbox:      make(map[sessionModel.Role][]outboxEntry),
		flushing:    make(map[sessionModel.Role]bool),
		unacked:     make(map[string]*translation.Event),
		events:      make(map[string]*translation.Event),
	}
	r.rooms[sessionID] = rm
	return rm
}

func (r *Relay) lookupRoom(sessionID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[sessionID]
}

// Bind attaches a connection handle to a role. A live handle for the same
// role rejects the attempt; a torn-down one is superseded. Returns the
// binding id the handler must present on Unbind.
func (r *Relay) Bind(ctx context.Context, sessionID string, role sessionModel.Role, conn Conn) (uint64, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Status != sessionModel.StatusActive {
		return 0, ErrSessionNotActive
	}

	rm := r.getOrCreateRoom(sessionID)

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return 0, ErrSessionNotActive
	}
	if _, live := rm.bindings[role]; live {
		rm.mu.Unlock()
		return 0, ErrRoleBound
	}

	rm.nextBind++
	id := rm.nextBind
	rm.bindings[role] = &binding{conn: conn, id: id}

	if role == sessionModel.RoleProvider && rm.providerTimer != nil {
		rm.providerTimer.Stop()
		rm.providerTimer = nil
	}

	rm.mu.Unlock()

	log.Printf("[relay] bound session=%s role=%s binding=%d", sessionID, role, id)

	// Replay anything that translated while this side was away. Results that
	// finish during the replay land behind these in the outbox, so nothing
	// can overtake them.
	r.flushOutbox(rm, role)

	if err := r.sessions.SetBound(ctx, sessionID, role, true); err != nil {
		log.Printf("[relay] mirror bind state failed session=%s role=%s: %v", sessionID, role, err)
	}

	return id, nil
}

// Unbind detaches a handle if it is still the current one for the role.
// Stale unbinds after a supersede are ignored.
func (r *Relay) Unbind(sessionID string, role sessionModel.Role, bindingID uint64) {
	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	current, ok := rm.bindings[role]
	if !ok || current.id != bindingID {
		rm.mu.Unlock()
		return
	}
	delete(rm.bindings, role)

	startGrace := role == sessionModel.RoleProvider && !rm.closed
	if startGrace {
		rm.providerTimer = time.AfterFunc(r.providerGrace, func() {
			r.providerGraceExpired(sessionID)
		})
	}
	rm.mu.Unlock()

	if err := r.sessions.SetBound(context.Background(), sessionID, role, false); err != nil {
		log.Printf("[relay] mirror unbind state failed session=%s role=%s: %v", sessionID, role, err)
	}

	log.Printf("[relay] unbound session=%s role=%s binding=%d", sessionID, role, bindingID)
}

func (r *Relay) providerGraceExpired(sessionID string) {
	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	_, providerBound := rm.bindings[sessionModel.RoleProvider]
	closed := rm.closed
	rm.mu.Unlock()

	if providerBound || closed {
		return
	}

	log.Printf("[relay] provider grace expired, ending session=%s", sessionID)
	if err := r.sessions.EndSessionBySystem(context.Background(), sessionID); err != nil {
		log.Printf("[relay] end session after grace failed session=%s: %v", sessionID, err)
	}
}

// ReportState records the submitting device's last known connection state,
// which drives path selection for its subsequent submissions.
func (r *Relay) ReportState(sessionID string, role sessionModel.Role, state connectivityModel.State) {
	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	rm.lastState[role] = state
	rm.mu.Unlock()
}

// Submit accepts one translation request from a bound role. Translation runs
// concurrently; the result releases to the peer in submission order.
func (r *Relay) Submit(ctx context.Context, sessionID string, role sessionModel.Role, event translation.Event) error {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != sessionModel.StatusActive {
		return ErrSessionNotActive
	}

	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return ErrNotBound
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return ErrSessionNotActive
	}
	if _, ok := rm.bindings[role]; !ok {
		rm.mu.Unlock()
		return ErrNotBound
	}

	seq := rm.nextSeq[role]
	rm.nextSeq[role]++

	event.State = translation.StatePending
	event.SessionID = sessionID
	event.Origin = string(role)
	stored := event
	rm.events[event.ID] = &stored

	state := rm.lastState[role]
	rm.mu.Unlock()

	path := translator.SelectPath(r.remote, r.edge, state)
	if path != nil && path.Name() != "edge" {
		path = translator.WithFallback(path, r.edge)
	}

	go r.translateAndRelease(rm, role, seq, &stored, path)
	return nil
}

func (r *Relay) translateAndRelease(rm *room, role sessionModel.Role, seq uint64, event *translation.Event, path translator.Translator) {
	result, err := path.Translate(rm.ctx, translator.Request{
		Text:           event.OriginalText,
		SourceLanguage: event.SourceLanguage,
		TargetLanguage: event.TargetLanguage,
		MedicalContext: r.medicalContext(rm),
	})

	rm.mu.Lock()
	if err != nil {
		event.State = translation.StateFailed
	} else {
		event.State = translation.StateTranslated
		event.TranslatedText = result.TranslatedText
		event.Confidence = result.Confidence
	}

	if rm.completed[role] == nil {
		rm.completed[role] = make(map[uint64]pendingResult)
	}
	rm.completed[role][seq] = pendingResult{event: event, err: err}

	// Only one goroutine drains a sender's results at a time; everyone else
	// just deposits and leaves. That keeps release strictly in submission
	// order even when a younger translation finishes first.
	if rm.draining[role] {
		rm.mu.Unlock()
		return
	}
	rm.draining[role] = true

	for {
		next, ok := rm.completed[role][rm.nextRelease[role]]
		if !ok || rm.closed {
			rm.draining[role] = false
			rm.mu.Unlock()
			return
		}
		delete(rm.completed[role], rm.nextRelease[role])
		rm.nextRelease[role]++
		rm.mu.Unlock()

		if next.err != nil {
			r.reportFailure(rm, role, next.event, next.err)
		} else {
			r.routeToPeer(rm, role, next.event)
		}

		rm.mu.Lock()
	}
}

func (r *Relay) medicalContext(rm *room) string {
	sess, err := r.sessions.Get(rm.ctx, rm.id)
	if err != nil {
		return "general"
	}
	if sess.MedicalContext == "" {
		return "general"
	}
	return sess.MedicalContext
}

// routeToPeer pushes a translated event toward the opposite role, queueing it
// when the peer has no live handle.
func (r *Relay) routeToPeer(rm *room, sender sessionModel.Role, event *translation.Event) {
	peer := sender.Peer()
	entry := outboxEntry{
		envelope: translation.Envelope{
			Type:           translation.TypeTranslation,
			MessageID:      event.ID,
			SessionID:      rm.id,
			Role:           string(sender),
			OriginalText:   event.OriginalText,
			SourceLanguage: event.SourceLanguage,
			TargetLanguage: event.TargetLanguage,
			TranslatedText: event.TranslatedText,
			Confidence:     event.Confidence,
			Timestamp:      time.Now().Unix(),
		},
		eventID: event.ID,
		sender:  sender,
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return
	}

	rm.outbox[peer] = append(rm.outbox[peer], entry)
	_, live := rm.bindings[peer]

	if !live && len(rm.outbox[peer]) > r.outboxCapacity {
		evicted := rm.outbox[peer][0]
		rm.outbox[peer] = rm.outbox[peer][1:]
		if ev, ok := rm.events[evicted.eventID]; ok {
			ev.State = translation.StateFailed
		}
		rm.mu.Unlock()
		log.Printf("[relay] outbox overflow session=%s peer=%s evicted=%s", rm.id, peer, evicted.eventID)
		r.reportDeliveryFailure(rm, evicted.sender, evicted.eventID)
		return
	}
	rm.mu.Unlock()

	if !live {
		log.Printf("[relay] peer offline, queued session=%s peer=%s message=%s", rm.id, peer, event.ID)
		return
	}
	r.flushOutbox(rm, peer)
}

// flushOutbox drains a recipient's queued results onto its live handle in
// FIFO order and records each as awaiting the recipient's ack. At most one
// flusher runs per recipient; a failed write puts the entry back at the head
// so the eventual retry keeps submission order.
func (r *Relay) flushOutbox(rm *room, recipient sessionModel.Role) {
	rm.mu.Lock()
	if rm.flushing[recipient] {
		rm.mu.Unlock()
		return
	}
	rm.flushing[recipient] = true

	for {
		b, live := rm.bindings[recipient]
		if rm.closed || !live || len(rm.outbox[recipient]) == 0 {
			rm.flushing[recipient] = false
			rm.mu.Unlock()
			return
		}

		entry := rm.outbox[recipient][0]
		rm.outbox[recipient] = rm.outbox[recipient][1:]
		if ev, ok := rm.events[entry.eventID]; ok {
			rm.unacked[entry.eventID] = ev
		}
		conn := b.conn
		rm.mu.Unlock()

		err := conn.WriteJSON(entry.envelope)

		rm.mu.Lock()
		if err != nil {
			log.Printf("[relay] write failed session=%s role=%s: %v", rm.id, recipient, err)
			delete(rm.unacked, entry.eventID)
			if !rm.closed {
				rm.outbox[recipient] = append([]outboxEntry{entry}, rm.outbox[recipient]...)
			}
			rm.flushing[recipient] = false
			rm.mu.Unlock()
			return
		}
	}
}

// Ack marks a delivered event acknowledged by its recipient.
func (r *Relay) Ack(sessionID string, messageID string) {
	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	ev, ok := rm.unacked[messageID]
	if !ok {
		return
	}
	delete(rm.unacked, messageID)
	ev.State = translation.StateDelivered
}

// reportFailure echoes a translation failure to the sender only.
func (r *Relay) reportFailure(rm *room, sender sessionModel.Role, event *translation.Event, cause error) {
	log.Printf("[relay] translation failed session=%s message=%s: %v", rm.id, event.ID, cause)
	r.sendToRole(rm, sender, translation.Envelope{
		Type:      translation.TypeTranslationFailed,
		MessageID: event.ID,
		SessionID: rm.id,
		Error:     "translation failed",
		Timestamp: time.Now().Unix(),
	})
}

// reportDeliveryFailure tells the original sender its result was dropped
// because the peer stayed unreachable past queue capacity.
func (r *Relay) reportDeliveryFailure(rm *room, sender sessionModel.Role, messageID string) {
	r.sendToRole(rm, sender, translation.Envelope{
		Type:      translation.TypeTranslationFailed,
		MessageID: messageID,
		SessionID: rm.id,
		Error:     "delivery failed: peer unreachable and queue full",
		Timestamp: time.Now().Unix(),
	})
}

func (r *Relay) sendToRole(rm *room, role sessionModel.Role, env translation.Envelope) {
	rm.mu.Lock()
	b, live := rm.bindings[role]
	rm.mu.Unlock()

	if !live {
		log.Printf("[relay] %s notice dropped, %s offline session=%s message=%s", env.Type, role, rm.id, env.MessageID)
		return
	}
	if err := b.conn.WriteJSON(env); err != nil {
		log.Printf("[relay] notice write failed session=%s role=%s: %v", rm.id, role, err)
	}
}

// SessionEnded implements the session manager's Notifier: broadcast the
// session_closed frame exactly once per bound connection, cancel in-flight
// translation work, and drop the room.
func (r *Relay) SessionEnded(sessionID string) {
	r.mu.Lock()
	rm, ok := r.rooms[sessionID]
	if ok {
		delete(r.rooms, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return
	}
	rm.closed = true
	if rm.providerTimer != nil {
		rm.providerTimer.Stop()
		rm.providerTimer = nil
	}
	conns := make([]Conn, 0, len(rm.bindings))
	for _, b := range rm.bindings {
		conns = append(conns, b.conn)
	}
	rm.bindings = make(map[sessionModel.Role]*binding)
	rm.mu.Unlock()

	rm.cancel()

	closedFrame := translation.Envelope{
		Type:      translation.TypeSessionClosed,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
	}
	for _, c := range conns {
		if err := c.WriteJSON(closedFrame); err != nil {
			log.Printf("[relay] session_closed write failed session=%s: %v", sessionID, err)
		}
		_ = c.Close()
	}

	log.Printf("[relay] session closed session=%s connections=%d", sessionID, len(conns))
}

// EventState reports the delivery state of a submitted event, mainly for
// lifecycle inspection and tests.
func (r *Relay) EventState(sessionID, messageID string) (translation.DeliveryState, bool) {
	rm := r.lookupRoom(sessionID)
	if rm == nil {
		return "", false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	ev, ok := rm.events[messageID]
	if !ok {
		return "", false
	}
	return ev.State, true
}
