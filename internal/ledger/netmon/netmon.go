// Package netmon provides the connectivity monitor: the single source of
// truth for "is the remote reachable right now".
//
// The monitor is deliberately dumb. It emits online/offline transitions
// and answers synchronous snapshots; all sync policy (debounce, retries,
// scheduling) lives in the engine so it exists in exactly one place.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor reports remote reachability.
type Monitor interface {
	// Online is a synchronous snapshot for callers that cannot await
	// an event.
	Online() bool

	// Events emits a value on every online/offline transition. The
	// boolean is the new state. Transitions only - the current state is
	// not replayed to new readers.
	Events() <-chan bool
}

// Prober checks reachability by issuing periodic HEAD requests against a
// probe URL. A successful response (any status) means online: it proves
// end-to-end internet reachability, not just link-layer association.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client

	online atomic.Bool
	events chan bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	// URL to probe with HEAD requests.
	URL string

	// Interval between probes (default: 5s).
	Interval time.Duration

	// ProbeTimeout bounds a single probe (default: 3s).
	ProbeTimeout time.Duration
}

// NewProber creates a Prober. Start must be called before events flow.
func NewProber(cfg ProberConfig) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}

	return &Prober{
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   &http.Client{Timeout: cfg.ProbeTimeout},
		events:   make(chan bool, 8),
	}
}

// Online implements Monitor.Online.
func (p *Prober) Online() bool {
	return p.online.Load()
}

// Events implements Monitor.Events.
func (p *Prober) Events() <-chan bool {
	return p.events
}

// Start probes immediately, then on every interval tick, until Stop is
// called or ctx is cancelled.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts probing. It blocks until the probe loop has exited.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()

	p.check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Prober) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.transition(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.transition(false)
		return
	}
	resp.Body.Close()

	p.transition(true)
}

func (p *Prober) transition(online bool) {
	if p.online.Swap(online) == online {
		return
	}

	// Drop the event rather than block if nobody is reading; the
	// snapshot stays correct either way.
	select {
	case p.events <- online:
	default:
	}
}

// Manual is a Monitor toggled by hand. Tests use it to script
// connectivity; the CLI uses it for forced offline/online modes.
type Manual struct {
	online atomic.Bool
	events chan bool
}

// NewManual creates a Manual monitor in the given state.
func NewManual(online bool) *Manual {
	m := &Manual{events: make(chan bool, 8)}
	m.online.Store(online)
	return m
}

// Online implements Monitor.Online.
func (m *Manual) Online() bool {
	return m.online.Load()
}

// Events implements Monitor.Events.
func (m *Manual) Events() <-chan bool {
	return m.events
}

// SetOnline flips the state, emitting a transition event if it changed.
func (m *Manual) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	select {
	case m.events <- online:
	default:
	}
}
