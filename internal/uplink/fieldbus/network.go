// internal/uplink/fieldbus/network.go
package fieldbus

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/tbrandon/mbserver"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

// NetworkUplink serves the register bank over a TCP listener.
type NetworkUplink struct {
	cfg  config.NetworkConfig
	log  *slog.Logger
	bank *Bank

	mu      sync.Mutex
	running bool
	srv     *mbserver.Server
}

func NewNetwork(cfg config.NetworkConfig, log *slog.Logger) *NetworkUplink {
	l := log.With("uplink", uplink.FieldbusNetwork)
	return &NetworkUplink{
		cfg:  cfg,
		log:  l,
		bank: NewBank(l),
	}
}

func (u *NetworkUplink) Kind() uplink.Kind { return uplink.FieldbusNetwork }

func (u *NetworkUplink) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return nil
	}

	addr := net.JoinHostPort(u.cfg.Host, strconv.Itoa(u.cfg.Port))

	srv := mbserver.NewServer()
	attachBank(srv, u.bank)

	if err := srv.ListenTCP(addr); err != nil {
		srv.Close()
		u.log.Warn("listener start failed", "addr", addr, "err", err)
		return fmt.Errorf("fieldbus network: listen %s: %w", addr, err)
	}

	u.srv = srv
	u.running = true
	u.log.Info("register server listening", "addr", addr)
	return nil
}

func (u *NetworkUplink) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return
	}
	u.srv.Close()
	u.srv = nil
	u.running = false
	u.log.Info("register server stopped")
}

func (u *NetworkUplink) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *NetworkUplink) Deliver(r telemetry.Reading) error {
	u.bank.Apply(r)
	return nil
}

// Snapshot returns a copy of the registers for inspection.
func (u *NetworkUplink) Snapshot() any {
	return u.bank.Snapshot(BankSize)
}

// Bank exposes the register bank for direct inspection.
func (u *NetworkUplink) Bank() *Bank { return u.bank }
