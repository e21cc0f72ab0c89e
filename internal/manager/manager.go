// internal/manager/manager.go
package manager

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

// Observer is notified after each delivery attempt on the active
// uplink. The coordinator uses it to keep per-protocol counters.
type Observer interface {
	DeliverySucceeded(kind uplink.Kind)
	DeliveryFailed(kind uplink.Kind, err error)
}

// Manager enforces single-active-uplink semantics: at most one
// registered uplink runs at a time, and every reading routes to that
// one. Switching protocols stops the previous uplink before the next
// one starts.
//
// Two locks: transition serializes start/stop switches, mu guards the
// routing state. Uplink Start/Stop calls block on network I/O, so
// they run under transition only; Deliver touches mu alone and never
// stalls behind a protocol switch.
type Manager struct {
	log *slog.Logger

	// uplinks and order are fixed at construction.
	uplinks map[uplink.Kind]uplink.Uplink
	order   []uplink.Kind

	transition sync.Mutex

	mu        sync.Mutex
	active    uplink.Kind
	lastError string
	obs       Observer
}

func New(log *slog.Logger, uplinks ...uplink.Uplink) *Manager {
	m := &Manager{
		log:     log.With("component", "manager"),
		uplinks: make(map[uplink.Kind]uplink.Uplink, len(uplinks)),
	}
	for _, u := range uplinks {
		m.uplinks[u.Kind()] = u
		m.order = append(m.order, u.Kind())
	}
	return m
}

// SetObserver installs the delivery observer. Call before Start.
func (m *Manager) SetObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = obs
}

// Kinds returns the registered uplink kinds in registration order.
func (m *Manager) Kinds() []uplink.Kind {
	out := make([]uplink.Kind, len(m.order))
	copy(out, m.order)
	return out
}

// Start activates the named uplink, stopping whichever one is running
// first. An unknown kind is rejected without touching the current
// state. The bool reports whether the uplink is running afterwards.
func (m *Manager) Start(kind uplink.Kind) (bool, string) {
	m.transition.Lock()
	defer m.transition.Unlock()

	target, ok := m.uplinks[kind]
	if !ok {
		msg := fmt.Sprintf("unknown protocol %q", kind)
		m.log.Warn("start rejected", "protocol", kind)
		return false, msg
	}

	if m.Active() == kind && target.Running() {
		return true, fmt.Sprintf("%s already running", kind)
	}

	m.stopEverything()

	if err := target.Start(); err != nil {
		m.setLastError(err.Error())
		m.log.Error("uplink start failed", "protocol", kind, "err", err)
		return false, fmt.Sprintf("%s start failed: %v", kind, err)
	}
	if !target.Running() {
		msg := fmt.Sprintf("%s did not come up", kind)
		m.setLastError(msg)
		m.log.Warn("uplink not running after start", "protocol", kind)
		return false, msg
	}

	m.mu.Lock()
	m.active = kind
	m.lastError = ""
	m.mu.Unlock()

	m.log.Info("uplink active", "protocol", kind)
	return true, fmt.Sprintf("%s started", kind)
}

// Stop stops the named uplink, clearing it as active if it was.
func (m *Manager) Stop(kind uplink.Kind) {
	m.transition.Lock()
	defer m.transition.Unlock()

	u, ok := m.uplinks[kind]
	if !ok {
		return
	}

	m.mu.Lock()
	if m.active == kind {
		m.active = uplink.None
	}
	m.mu.Unlock()

	u.Stop()
}

// StopAll stops every registered uplink.
func (m *Manager) StopAll() {
	m.transition.Lock()
	defer m.transition.Unlock()
	m.stopEverything()
}

// stopEverything runs under transition only; readings stop routing
// before the blocking Stop calls begin.
func (m *Manager) stopEverything() {
	m.mu.Lock()
	m.active = uplink.None
	m.mu.Unlock()

	for _, kind := range m.order {
		if u := m.uplinks[kind]; u.Running() {
			u.Stop()
			m.log.Info("uplink stopped", "protocol", kind)
		}
	}
}

// Active reports which uplink currently receives readings.
func (m *Manager) Active() uplink.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Running reports whether the named uplink is up.
func (m *Manager) Running(kind uplink.Kind) bool {
	u, ok := m.uplinks[kind]
	return ok && u.Running()
}

// LastError returns the most recent start or delivery failure, empty
// when the last operation succeeded.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

func (m *Manager) setLastError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}

// Deliver routes one reading to the active uplink. Delivery failures
// are recorded and reported to the observer but never propagated: a
// flapping uplink must not stall ingestion.
func (m *Manager) Deliver(r telemetry.Reading) error {
	m.mu.Lock()
	kind := m.active
	obs := m.obs
	m.mu.Unlock()

	if kind == uplink.None {
		return nil
	}
	u := m.uplinks[kind]

	if err := u.Deliver(r); err != nil {
		m.setLastError(err.Error())
		m.log.Warn("delivery failed", "protocol", kind, "err", err)
		if obs != nil {
			obs.DeliveryFailed(kind, err)
		}
		return nil
	}

	if obs != nil {
		obs.DeliverySucceeded(kind)
	}
	return nil
}

// LatestData returns the active uplink's snapshot, or nil when no
// uplink is active.
func (m *Manager) LatestData() any {
	kind := m.Active()
	if kind == uplink.None {
		return nil
	}
	return m.uplinks[kind].Snapshot()
}
