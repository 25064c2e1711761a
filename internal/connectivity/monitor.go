package connectivity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"posync/internal/metrics"

	"github.com/rs/zerolog"
)

// Listener receives reachability transitions.
type Listener func(online bool)

// Monitor tracks remote reachability and fans transitions out to
// subscribers. It trusts whatever signal feeds SetOnline; a "became
// reachable" notification is a trigger, not a guarantee that the next
// request will succeed.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []subscriber
	nextID int
	logger *zerolog.Logger
}

type subscriber struct {
	id       int
	listener Listener
}

func NewMonitor(initial bool, logger *zerolog.Logger) *Monitor {
	metrics.SetOnline(initial)
	return &Monitor{online: initial, logger: logger}
}

// Online reports the current reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a reachability signal. Subscribers are notified only
// on transitions, synchronously and in subscription order, so every
// listener observes the same transition sequence.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	metrics.SetOnline(online)
	if m.logger != nil {
		m.logger.Info().Bool("online", online).Msg("connectivity transition")
	}

	for _, sub := range m.subs {
		sub.listener(online)
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Listeners must not call back into the monitor.
func (m *Monitor) Subscribe(listener Listener) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, listener: listener})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Prober feeds the monitor by polling the remote health endpoint. A
// daemon has no runtime connectivity signal the way a browser does, so
// reachability is derived from the probe outcome.
type Prober struct {
	monitor  *Monitor
	client   *http.Client
	url      string
	interval time.Duration
	logger   *zerolog.Logger
}

func NewProber(monitor *Monitor, baseURL, probePath string, timeout, interval time.Duration, logger *zerolog.Logger) *Prober {
	return &Prober{
		monitor:  monitor,
		client:   &http.Client{Timeout: timeout},
		url:      strings.TrimSuffix(baseURL, "/") + probePath,
		interval: interval,
		logger:   logger,
	}
}

// ProbeOnce performs a single reachability check and feeds the result to
// the monitor. Used for the synchronous startup check.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	online := p.check(ctx)
	p.monitor.SetOnline(online)
	return online
}

// Run polls until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.monitor.SetOnline(p.check(ctx))
		}
	}
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}
