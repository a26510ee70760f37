// Package client is the device-side counterpart of the relay: it keeps a
// WebSocket to the server, watches the connectivity monitor, and falls back
// to the on-device translator plus the offline queue when the network drops.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lingobridge/backend/internal/connectivity"
	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
	"github.com/lingobridge/backend/internal/model/translation"
	"github.com/lingobridge/backend/internal/offline"
	"github.com/lingobridge/backend/internal/service/translator"
)

var ErrNotConnected = errors.New("relay connection is not established")

// Handlers are the client application's hooks. Nil hooks are skipped.
type Handlers struct {
	// OnTranslation fires for results relayed from the peer.
	OnTranslation func(translation.Envelope)

	// OnLocalTranslation fires when the edge path translated an utterance
	// while offline; the event is also queued for replay.
	OnLocalTranslation func(translation.Event, translator.Result)

	// OnNotice fires for failure notices and connectivity escalations.
	OnNotice func(severity connectivity.Severity, message string)

	// OnSessionClosed fires once when the relay ends the session.
	OnSessionClosed func()
}

// Config describes one participant's connection.
type Config struct {
	ServerURL  string // e.g. ws://localhost:8080
	SessionID  string
	Credential string

	SourceLanguage string
	TargetLanguage string
	MedicalContext string

	QueueCapacity int
	AckTimeout    time.Duration
}

// Client ties the monitor, the queue, and the relay connection together so
// callers see an always-available submit operation.
type Client struct {
	cfg      Config
	handlers Handlers
	monitor  *connectivity.Monitor
	queue    *offline.Queue
	edge     *translator.EdgeTranslator

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	acks    map[string]chan struct{}

	unsubscribe func()
	closed      chan struct{}
}

// New builds a client around an externally-fed connectivity monitor.
func New(cfg Config, monitor *connectivity.Monitor, handlers Handlers) *Client {
	c := &Client{
		cfg:      cfg,
		handlers: handlers,
		monitor:  monitor,
		edge:     translator.NewEdgeTranslator(),
		acks:     make(map[string]chan struct{}),
		closed:   make(chan struct{}),
	}

	c.queue = offline.NewQueue(offline.Options{
		Capacity:   cfg.QueueCapacity,
		AckTimeout: cfg.AckTimeout,
		OnEvict: func(ev translation.Event) {
			c.notify(connectivity.SeverityWarning, fmt.Sprintf("message %s dropped: offline queue full", ev.ID))
		},
	})

	c.unsubscribe = monitor.Subscribe(c.onConnectivityChange)
	return c
}

// Connect dials the relay and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	u.Path = "/api/ws/" + c.cfg.SessionID
	q := u.Query()
	q.Set("token", c.cfg.Credential)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close tears the client down.
func (c *Client) Close() {
	c.unsubscribe()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// QueueLen exposes how many events await replay.
func (c *Client) QueueLen() int { return c.queue.Len() }

// Submit sends one utterance. Online it goes to the relay; offline it is
// translated on-device for immediate display and queued for ordered replay.
func (c *Client) Submit(ctx context.Context, text string) error {
	event := translation.Event{
		ID:             uuid.NewString(),
		SessionID:      c.cfg.SessionID,
		OriginalText:   text,
		SourceLanguage: c.cfg.SourceLanguage,
		TargetLanguage: c.cfg.TargetLanguage,
		Timestamp:      time.Now().UTC(),
	}

	if c.monitor.Current().Offline() {
		return c.submitOffline(ctx, event)
	}

	if err := c.Send(ctx, event); err != nil {
		// The link may have died between the last signal and now; keep the
		// message rather than losing it.
		log.Printf("[client] send failed, queueing message=%s: %v", event.ID, err)
		return c.submitOffline(ctx, event)
	}
	return nil
}

func (c *Client) submitOffline(ctx context.Context, event translation.Event) error {
	c.queue.Enqueue(event)

	result, err := c.edge.Translate(ctx, translator.Request{
		Text:           event.OriginalText,
		SourceLanguage: event.SourceLanguage,
		TargetLanguage: event.TargetLanguage,
		MedicalContext: c.cfg.MedicalContext,
	})
	if err != nil {
		return fmt.Errorf("edge translation: %w", err)
	}

	if c.handlers.OnLocalTranslation != nil {
		c.handlers.OnLocalTranslation(event, result)
	}
	return nil
}

// Send implements offline.Sender: it writes one translation frame and waits
// for the relay's acceptance ack.
func (c *Client) Send(ctx context.Context, event translation.Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ackCh := make(chan struct{}, 1)
	c.mu.Lock()
	c.acks[event.ID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, event.ID)
		c.mu.Unlock()
	}()

	env := translation.Envelope{
		Type:           translation.TypeTranslation,
		MessageID:      event.ID,
		SessionID:      event.SessionID,
		OriginalText:   event.OriginalText,
		SourceLanguage: event.SourceLanguage,
		TargetLanguage: event.TargetLanguage,
		Quality:        string(c.monitor.Current().Quality),
		Timestamp:      time.Now().Unix(),
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ackCh:
		return nil
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env translation.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Printf("[client] connection closed: %v", err)
			return
		}

		switch env.Type {
		case translation.TypeTranslation:
			c.ackDelivery(conn, env.MessageID)
			if c.handlers.OnTranslation != nil {
				c.handlers.OnTranslation(env)
			}
		case translation.TypeAck:
			c.mu.Lock()
			ch, ok := c.acks[env.MessageID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		case translation.TypeTranslationFailed:
			c.notify(connectivity.SeverityWarning, "translation failed: "+env.Error)
		case translation.TypeSessionClosed:
			if c.handlers.OnSessionClosed != nil {
				c.handlers.OnSessionClosed()
			}
			return
		case translation.TypeError:
			c.notify(connectivity.SeverityWarning, env.Error)
		}
	}
}

// ackDelivery confirms receipt so the relay can mark the event delivered.
func (c *Client) ackDelivery(conn *websocket.Conn, messageID string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.WriteJSON(translation.Envelope{
		Type:      translation.TypeAck,
		MessageID: messageID,
		SessionID: c.cfg.SessionID,
		Timestamp: time.Now().Unix(),
	})
}

// onConnectivityChange reacts to monitor emissions: surfacing escalating
// offline notices and flushing the queue on reconnect.
func (c *Client) onConnectivityChange(state connectivityModel.State) {
	if state.Offline() {
		c.notify(connectivity.OfflineSeverity(state.OfflineFor), connectivity.OfflineNotice(state.OfflineFor))
		return
	}

	if c.queue.Len() == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-c.closed
			cancel()
		}()

		if err := c.queue.Flush(ctx, c); err != nil && !errors.Is(err, offline.ErrFlushInProgress) {
			log.Printf("[client] queue flush interrupted: %v", err)
			return
		}
		log.Printf("[client] offline queue flushed")
	}()
}

func (c *Client) notify(severity connectivity.Severity, message string) {
	if c.handlers.OnNotice != nil {
		c.handlers.OnNotice(severity, message)
	}
}
