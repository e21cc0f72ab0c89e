// internal/manager/coordinator.go
package manager

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

const startPace = 500 * time.Millisecond

// SourceControl is the ingestion side of the coordinator: the serial
// reader is controlled through it so the coordinator can treat the
// telemetry source like any other protocol in status reports.
type SourceControl interface {
	Start() (bool, error)
	Stop()
	Running() bool
}

// Result is the outcome of one start or stop request.
type Result struct {
	Success bool
	Message string
}

// Coordinator drives every protocol from one place: the serial source
// through SourceControl, the uplinks through the Manager. It keeps the
// per-protocol status records that feed the text report.
type Coordinator struct {
	cfg    *config.Config
	mgr    *Manager
	source SourceControl

	mu       sync.Mutex
	statuses map[string]*uplink.Status

	now  func() time.Time
	pace time.Duration
}

func NewCoordinator(cfg *config.Config, mgr *Manager, source SourceControl) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		mgr:      mgr,
		source:   source,
		statuses: make(map[string]*uplink.Status),
		now:      time.Now,
		pace:     startPace,
	}
	for _, name := range config.SupportedProtocols() {
		c.statuses[name] = &uplink.Status{
			Name:            uplink.Kind(name),
			Description:     config.ProtocolDescription(name),
			Configured:      cfg.IsProtocolConfigured(name),
			ConnectionState: uplink.StateDisconnected,
		}
	}
	return c
}

// StartProtocol starts one protocol by name. Unsupported and
// unconfigured protocols are rejected without side effects.
func (c *Coordinator) StartProtocol(name string) Result {
	if !config.IsSupportedProtocol(name) {
		return Result{Message: fmt.Sprintf("unsupported protocol %q", name)}
	}
	if !c.cfg.IsProtocolConfigured(name) {
		return Result{Message: fmt.Sprintf("%s is not configured", name)}
	}

	if name == config.ProtocolSerialSource {
		started, err := c.source.Start()
		if err != nil {
			c.markStopped(name, err.Error())
			return Result{Message: fmt.Sprintf("%s start failed: %v", name, err)}
		}
		if !started && !c.source.Running() {
			return Result{Message: fmt.Sprintf("%s did not start", name)}
		}
		c.markRunning(name)
		return Result{Success: true, Message: fmt.Sprintf("%s started", name)}
	}

	ok, msg := c.mgr.Start(uplink.Kind(name))
	if ok {
		// The manager stopped every other uplink first; mirror that.
		for _, other := range config.SupportedProtocols() {
			if other != name && other != config.ProtocolSerialSource {
				c.markStopped(other, "")
			}
		}
		c.markRunning(name)
	} else {
		c.markStopped(name, msg)
	}
	return Result{Success: ok, Message: msg}
}

// StopProtocol stops one protocol by name.
func (c *Coordinator) StopProtocol(name string) Result {
	if !config.IsSupportedProtocol(name) {
		return Result{Message: fmt.Sprintf("unsupported protocol %q", name)}
	}

	if name == config.ProtocolSerialSource {
		c.source.Stop()
	} else {
		c.mgr.Stop(uplink.Kind(name))
	}
	c.markStopped(name, "")
	return Result{Success: true, Message: fmt.Sprintf("%s stopped", name)}
}

// StartAll starts every configured protocol in the fixed order, pacing
// the starts so serial lines and sockets settle between attempts. Only
// the last uplink in the order stays active; the source always runs.
func (c *Coordinator) StartAll() map[string]Result {
	results := make(map[string]Result)
	for i, name := range config.SupportedProtocols() {
		if !c.cfg.IsProtocolConfigured(name) {
			results[name] = Result{Message: fmt.Sprintf("%s is not configured", name)}
			continue
		}
		if i > 0 && c.pace > 0 {
			time.Sleep(c.pace)
		}
		results[name] = c.StartProtocol(name)
	}
	return results
}

// StopAll stops the source and every uplink.
func (c *Coordinator) StopAll() map[string]Result {
	results := make(map[string]Result)
	for _, name := range config.SupportedProtocols() {
		results[name] = c.StopProtocol(name)
	}
	return results
}

// Recommended returns the protocols worth auto-starting: every
// configured uplink, or the serial source alone when no uplink has
// configuration.
func (c *Coordinator) Recommended() []string {
	var uplinks []string
	for _, name := range config.SupportedProtocols() {
		if name == config.ProtocolSerialSource {
			continue
		}
		if c.cfg.IsProtocolConfigured(name) {
			uplinks = append(uplinks, name)
		}
	}
	if len(uplinks) == 0 && c.cfg.IsProtocolConfigured(config.ProtocolSerialSource) {
		return []string{config.ProtocolSerialSource}
	}
	return uplinks
}

// AutoStartRecommended starts the first recommended protocol. Only
// one uplink can be active anyway, so starting more would just churn
// through start/stop cycles.
func (c *Coordinator) AutoStartRecommended() (map[string]Result, string) {
	rec := c.Recommended()
	if len(rec) == 0 {
		return nil, "no configured protocols to start"
	}
	name := rec[0]
	res := c.StartProtocol(name)
	return map[string]Result{name: res}, fmt.Sprintf("auto-start %s: %s", name, res.Message)
}

// ---- status bookkeeping ----

func (c *Coordinator) markRunning(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.statuses[name]
	st.Running = true
	st.ConnectionState = uplink.StateConnected
	st.StartedAt = c.now()
	st.LastError = ""
}

func (c *Coordinator) markStopped(name, lastError string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.statuses[name]
	st.Running = false
	if lastError != "" {
		st.ConnectionState = uplink.StateError
		st.LastError = lastError
		st.ErrorCount++
	} else {
		st.ConnectionState = uplink.StateDisconnected
	}
}

// DeliverySucceeded implements Observer.
func (c *Coordinator) DeliverySucceeded(kind uplink.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.statuses[string(kind)]; ok {
		st.Delivered++
		st.LastActivity = c.now()
	}
}

// DeliveryFailed implements Observer.
func (c *Coordinator) DeliveryFailed(kind uplink.Kind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.statuses[string(kind)]; ok {
		st.ErrorCount++
		st.LastError = err.Error()
		st.LastActivity = c.now()
	}
}

// Summary is the aggregated view over all protocols.
type Summary struct {
	Total       int
	Configured  int
	Running     int
	Active      uplink.Kind
	Details     map[string]uplink.Status
	GeneratedAt time.Time
}

// Status returns a copy of the per-protocol records plus totals.
// Running flags are refreshed from the live components, not trusted
// from the bookkeeping.
func (c *Coordinator) Status() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Total:       len(c.statuses),
		Active:      c.mgr.Active(),
		Details:     make(map[string]uplink.Status, len(c.statuses)),
		GeneratedAt: c.now(),
	}
	for name, st := range c.statuses {
		detail := *st
		if name == config.ProtocolSerialSource {
			detail.Running = c.source.Running()
		} else {
			detail.Running = c.mgr.Running(uplink.Kind(name))
		}
		detail.Configured = c.cfg.IsProtocolConfigured(name)
		if detail.Configured {
			s.Configured++
		}
		if detail.Running {
			s.Running++
		}
		s.Details[name] = detail
	}
	return s
}

// ExportReport renders the status as a fixed-order text block.
func (c *Coordinator) ExportReport() string {
	s := c.Status()

	names := make([]string, 0, len(s.Details))
	for name := range s.Details {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return protocolRank(names[i]) < protocolRank(names[j])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "protocol status report  %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "configured %d/%d  running %d  active %s\n",
		s.Configured, s.Total, s.Running, orNone(string(s.Active)))
	for _, name := range names {
		st := s.Details[name]
		fmt.Fprintf(&b, "%-4s  %-38s configured=%-5v running=%-5v state=%s delivered=%d errors=%d",
			name, st.Description, st.Configured, st.Running, st.ConnectionState, st.Delivered, st.ErrorCount)
		if st.LastError != "" {
			fmt.Fprintf(&b, " last_error=%q", st.LastError)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func protocolRank(name string) int {
	for i, p := range config.SupportedProtocols() {
		if p == name {
			return i
		}
	}
	return len(config.SupportedProtocols())
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
