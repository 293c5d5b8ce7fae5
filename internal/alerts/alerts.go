// Package alerts tracks suspicious-traffic alerts on the watcher side:
// every correlated network event raises one, and an operator resolves
// it by blocking the destination, blocking the source extension, or
// allowing the traffic. Resolution is one-way; a resolved alert never
// reactivates.
package alerts

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ecovive/leakwatch/internal/blocklist"
	"github.com/ecovive/leakwatch/internal/model"
	"github.com/ecovive/leakwatch/internal/risk"
	"github.com/ecovive/leakwatch/internal/state"
)

const (
	// MaxAlerts caps the retained alert list; the oldest alert is
	// evicted when a new one arrives at the cap, resolved or not.
	MaxAlerts = 200

	// BlockedAttemptHistory caps the retained blocked-attempt list.
	BlockedAttemptHistory = 10

	destCacheSize = 64
	topDestReport = 6
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Resolution records how an operator closed an alert.
type Resolution string

const (
	ResolvedBlockDomain    Resolution = "blocked-domain"
	ResolvedBlockExtension Resolution = "blocked-extension"
	ResolvedAllow          Resolution = "allowed"
)

// Alert is one operator-actionable finding.
type Alert struct {
	ID          string
	CreatedAt   time.Time
	Event       model.NetworkEvent
	Correlation model.Correlation
	Risk        risk.Risk
	Status      Status
	Resolution  Resolution
}

// Commander issues block/unblock commands back to the control plane.
// The watcher's HTTP client implements it.
type Commander interface {
	Do(ctx context.Context, req model.ActionRequest) (model.ActionResponse, error)
}

// DestCount is one entry of the top-destination report.
type DestCount struct {
	Host string
	Hits int
}

// Stats is a point-in-time summary of what the manager has seen.
type Stats struct {
	TotalEvents     int
	Correlated      int
	BlockedAttempts int
	ActiveAlerts    int
	ResolvedAlerts  int
	WeeklyCounts    map[string]int
	TopDestinations []DestCount
}

// Manager holds alert state for one watcher session. All methods are
// safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	store *state.Store
	cmd   Commander

	alerts          []*Alert             // newest first
	blockedAttempts []model.NetworkEvent // newest first
	blockedDomains  map[string]bool
	weekly          map[string]int
	destHits        *lru.Cache[string, int]

	totalEvents int
	correlated  int
	blocked     int

	now func() time.Time
}

// New creates a Manager, restoring the blocked-domain set and weekly
// counters from the state store. Both store and cmd may be nil; a nil
// store skips persistence, a nil cmd makes resolutions local-only.
func New(store *state.Store, cmd Commander) (*Manager, error) {
	dests, err := lru.New[string, int](destCacheSize)
	if err != nil {
		return nil, fmt.Errorf("alerts: destination cache: %w", err)
	}

	m := &Manager{
		store:          store,
		cmd:            cmd,
		blockedDomains: map[string]bool{},
		weekly:         map[string]int{},
		destHits:       dests,
		now:            time.Now,
	}

	if store != nil {
		if m.blockedDomains, err = store.LoadBlockedDomains(); err != nil {
			return nil, err
		}
		if m.weekly, err = store.LoadWeeklyCounters(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HandleMessage folds one broadcast message into the alert state.
// Messages it does not understand are ignored.
func (m *Manager) HandleMessage(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg.Type {
	case model.MsgExtensionEvent:
		m.totalEvents++

	case model.MsgProxyEvent:
		m.totalEvents++
		if msg.Network == nil {
			return
		}
		m.countDestination(msg.Network.Host)
		if msg.Correlation == nil {
			return
		}
		m.correlated++
		m.raise(*msg.Network, *msg.Correlation)

	case model.MsgBlockedAttempt:
		if msg.Network == nil {
			return
		}
		m.blocked++
		m.blockedAttempts = append([]model.NetworkEvent{*msg.Network}, m.blockedAttempts...)
		if len(m.blockedAttempts) > BlockedAttemptHistory {
			m.blockedAttempts = m.blockedAttempts[:BlockedAttemptHistory]
		}

	case model.MsgBlockedDomain:
		if msg.Domain == "" {
			return
		}
		m.blockedDomains[blocklist.BareHost(msg.Domain)] = true
		m.persistDomains()
	}
}

// raise creates an active alert, newest first, evicting the oldest at
// the cap. Caller holds m.mu.
func (m *Manager) raise(ev model.NetworkEvent, corr model.Correlation) {
	if corr.Confidence == 0 {
		corr.Confidence = risk.DefaultConfidence
	}

	a := &Alert{
		ID:          uuid.NewString(),
		CreatedAt:   m.now(),
		Event:       ev,
		Correlation: corr,
		Risk:        risk.Classify(corr.Confidence),
		Status:      StatusActive,
	}

	m.alerts = append([]*Alert{a}, m.alerts...)
	if len(m.alerts) > MaxAlerts {
		m.alerts = m.alerts[:MaxAlerts]
	}

	m.weekly[state.DateKey(a.CreatedAt)]++
	if m.store != nil {
		if err := m.store.SaveWeeklyCounters(m.weekly); err != nil {
			fmt.Fprintf(os.Stderr, "alerts: persist weekly counters: %v\n", err)
		}
	}
}

func (m *Manager) countDestination(host string) {
	host = blocklist.BareHost(host)
	if host == "" {
		return
	}
	n, _ := m.destHits.Get(host)
	m.destHits.Add(host, n+1)
}

func (m *Manager) persistDomains() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveBlockedDomains(m.blockedDomains); err != nil {
		fmt.Fprintf(os.Stderr, "alerts: persist blocked domains: %v\n", err)
	}
}

// ResolveBlockDomain resolves the alert and asks the control plane to
// block the destination host. Unknown or already-resolved alerts are
// no-ops.
func (m *Manager) ResolveBlockDomain(ctx context.Context, id string) error {
	m.mu.Lock()
	a := m.find(id)
	if a == nil || a.Status == StatusResolved {
		m.mu.Unlock()
		return nil
	}
	a.Status = StatusResolved
	a.Resolution = ResolvedBlockDomain

	host := blocklist.BareHost(a.Event.Host)
	m.blockedDomains[host] = true
	m.persistDomains()
	m.mu.Unlock()

	return m.issue(ctx, model.ActionRequest{Action: model.ActionBlockDomain, Domain: host})
}

// ResolveBlockExtension resolves the alert and asks the control plane
// to block the source extension. When the correlation carries no
// extension id the destination domain is blocked instead.
func (m *Manager) ResolveBlockExtension(ctx context.Context, id string) error {
	m.mu.Lock()
	a := m.find(id)
	if a == nil || a.Status == StatusResolved {
		m.mu.Unlock()
		return nil
	}
	a.Status = StatusResolved
	a.Resolution = ResolvedBlockExtension

	source := a.Correlation.Clipboard.Source
	host := blocklist.BareHost(a.Event.Host)
	if source == "" {
		m.blockedDomains[host] = true
		m.persistDomains()
	}
	m.mu.Unlock()

	if source == "" {
		return m.issue(ctx, model.ActionRequest{Action: model.ActionBlockDomain, Domain: host})
	}
	return m.issue(ctx, model.ActionRequest{Action: model.ActionBlockExtension, ExtensionID: source})
}

// ResolveAllow resolves the alert without any enforcement change.
func (m *Manager) ResolveAllow(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.find(id)
	if a == nil || a.Status == StatusResolved {
		return
	}
	a.Status = StatusResolved
	a.Resolution = ResolvedAllow
}

func (m *Manager) issue(ctx context.Context, req model.ActionRequest) error {
	if m.cmd == nil {
		return nil
	}
	resp, err := m.cmd.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("alerts: %s command: %w", req.Action, err)
	}
	if !resp.OK {
		return fmt.Errorf("alerts: %s command refused", req.Action)
	}
	return nil
}

// find returns the alert with the given id, or nil. Caller holds m.mu.
func (m *Manager) find(id string) *Alert {
	for _, a := range m.alerts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Alerts returns all retained alerts, newest first.
func (m *Manager) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// Active returns the active alerts, newest first.
func (m *Manager) Active() []Alert {
	return m.Filter("", "")
}

// Filter returns active alerts matching the given risk level (empty
// matches all) and a case-insensitive substring of the destination
// host or source page (empty matches all).
func (m *Manager) Filter(level risk.Risk, query string) []Alert {
	query = strings.ToLower(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Alert
	for _, a := range m.alerts {
		if a.Status != StatusActive {
			continue
		}
		if level != "" && a.Risk != level {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Event.Host), query) &&
			!strings.Contains(strings.ToLower(a.Correlation.Clipboard.Page), query) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Get returns the alert with the given id.
func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.find(id); a != nil {
		return *a, true
	}
	return Alert{}, false
}

// BlockedAttempts returns the recent rejected requests, newest first.
func (m *Manager) BlockedAttempts() []model.NetworkEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NetworkEvent, len(m.blockedAttempts))
	copy(out, m.blockedAttempts)
	return out
}

// BlockedDomains returns the locally known blocked domains, sorted.
func (m *Manager) BlockedDomains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.blockedDomains))
	for d := range m.blockedDomains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the session, including the busiest destinations.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		TotalEvents:     m.totalEvents,
		Correlated:      m.correlated,
		BlockedAttempts: m.blocked,
		WeeklyCounts:    make(map[string]int, len(m.weekly)),
	}
	for day, n := range m.weekly {
		st.WeeklyCounts[day] = n
	}
	for _, a := range m.alerts {
		if a.Status == StatusActive {
			st.ActiveAlerts++
		} else {
			st.ResolvedAlerts++
		}
	}

	for _, host := range m.destHits.Keys() {
		if n, ok := m.destHits.Peek(host); ok {
			st.TopDestinations = append(st.TopDestinations, DestCount{Host: host, Hits: n})
		}
	}
	sort.Slice(st.TopDestinations, func(i, j int) bool {
		if st.TopDestinations[i].Hits != st.TopDestinations[j].Hits {
			return st.TopDestinations[i].Hits > st.TopDestinations[j].Hits
		}
		return st.TopDestinations[i].Host < st.TopDestinations[j].Host
	})
	if len(st.TopDestinations) > topDestReport {
		st.TopDestinations = st.TopDestinations[:topDestReport]
	}
	return st
}
