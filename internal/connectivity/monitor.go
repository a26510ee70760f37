package connectivity

import (
	"sync"
	"time"

	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
)

// DefaultTickInterval is the cadence for offline-duration re-emission.
const DefaultTickInterval = time.Second

// Monitor classifies raw device network signals into a ConnectionState and
// fans it out to subscribers. It applies no path policy itself; callers do.
type Monitor struct {
	mu           sync.Mutex
	state        connectivityModel.State
	offlineSince time.Time
	subscribers  map[int]func(connectivityModel.State)
	nextID       int
	tickInterval time.Duration
	stopTicker   chan struct{}
}

// NewMonitor starts with quality offline until the first signal arrives.
func NewMonitor() *Monitor {
	return NewMonitorWithInterval(DefaultTickInterval)
}

// NewMonitorWithInterval overrides the offline re-emission cadence (tests).
func NewMonitorWithInterval(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Monitor{
		state:        connectivityModel.State{Quality: connectivityModel.QualityOffline},
		subscribers:  make(map[int]func(connectivityModel.State)),
		tickInterval: interval,
	}
}

// Classify applies the quality policy to a raw signal.
func Classify(sig connectivityModel.RawSignal) connectivityModel.Quality {
	if !sig.Connected {
		return connectivityModel.QualityOffline
	}

	switch sig.Transport {
	case connectivityModel.TransportWifi, connectivityModel.TransportEthernet:
		return connectivityModel.QualityGood
	case connectivityModel.TransportCellular:
		switch sig.Generation {
		case connectivityModel.Generation5G, connectivityModel.Generation4G:
			return connectivityModel.QualityGood
		case connectivityModel.Generation3G:
			return connectivityModel.QualityFair
		default:
			return connectivityModel.QualityPoor
		}
	default:
		return connectivityModel.QualityFair
	}
}

// Update ingests a raw signal, reclassifies, and notifies every subscriber
// synchronously before returning.
func (m *Monitor) Update(sig connectivityModel.RawSignal) {
	quality := Classify(sig)
	now := time.Now()

	m.mu.Lock()
	wasOffline := m.state.Quality == connectivityModel.QualityOffline
	isOffline := quality == connectivityModel.QualityOffline

	if isOffline && !wasOffline {
		m.offlineSince = now
		m.startTickerLocked()
	}
	if !isOffline && wasOffline {
		m.offlineSince = time.Time{}
		m.stopTickerLocked()
	}

	m.state = connectivityModel.State{
		Quality:           quality,
		InternetReachable: sig.InternetReachable,
		OfflineFor:        m.offlineForLocked(now),
	}
	state := m.state
	subs := m.snapshotLocked()
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// Current returns the last classified state with a live offline duration.
func (m *Monitor) Current() connectivityModel.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	state.OfflineFor = m.offlineForLocked(time.Now())
	return state
}

// Subscribe registers a callback invoked on every state emission. The
// returned cancel detaches it; safe to call more than once.
func (m *Monitor) Subscribe(fn func(connectivityModel.State)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

// Close tears down the offline ticker if one is running.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.stopTickerLocked()
	m.mu.Unlock()
}

func (m *Monitor) offlineForLocked(now time.Time) time.Duration {
	if m.offlineSince.IsZero() {
		return 0
	}
	return now.Sub(m.offlineSince)
}

func (m *Monitor) snapshotLocked() []func(connectivityModel.State) {
	subs := make([]func(connectivityModel.State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

// startTickerLocked launches the per-second duration re-emitter scoped to the
// offline state. Torn down the instant the state leaves offline.
func (m *Monitor) startTickerLocked() {
	if m.stopTicker != nil {
		return
	}
	stop := make(chan struct{})
	m.stopTicker = stop

	go func() {
		ticker := time.NewTicker(m.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				m.mu.Lock()
				if m.state.Quality != connectivityModel.QualityOffline {
					m.mu.Unlock()
					return
				}
				m.state.OfflineFor = m.offlineForLocked(now)
				state := m.state
				subs := m.snapshotLocked()
				m.mu.Unlock()

				for _, fn := range subs {
					fn(state)
				}
			}
		}
	}()
}

func (m *Monitor) stopTickerLocked() {
	if m.stopTicker == nil {
		return
	}
	close(m.stopTicker)
	m.stopTicker = nil
}
