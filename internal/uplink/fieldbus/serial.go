// internal/uplink/fieldbus/serial.go
package fieldbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

// SerialUplink serves the register bank over a serial line (RTU). Same
// register mapping as the network variant, different transport.
type SerialUplink struct {
	cfg  config.SerialConfig
	log  *slog.Logger
	bank *Bank

	mu      sync.Mutex
	running bool
	srv     *mbserver.Server
}

func NewSerial(cfg config.SerialConfig, log *slog.Logger) *SerialUplink {
	l := log.With("uplink", uplink.FieldbusSerial)
	return &SerialUplink{
		cfg:  cfg,
		log:  l,
		bank: NewBank(l),
	}
}

func (u *SerialUplink) Kind() uplink.Kind { return uplink.FieldbusSerial }

func (u *SerialUplink) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return nil
	}

	srv := mbserver.NewServer()
	attachBank(srv, u.bank)

	err := srv.ListenRTU(&serial.Config{
		Address:  u.cfg.Port,
		BaudRate: u.cfg.BaudRate,
		DataBits: u.cfg.ByteSize,
		StopBits: u.cfg.StopBits,
		Parity:   u.cfg.Parity,
		Timeout:  time.Duration(u.cfg.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		srv.Close()
		u.log.Warn("serial listener start failed", "port", u.cfg.Port, "err", err)
		return fmt.Errorf("fieldbus serial: open %s: %w", u.cfg.Port, err)
	}

	u.srv = srv
	u.running = true
	u.log.Info("register server listening", "port", u.cfg.Port, "baud", u.cfg.BaudRate)
	return nil
}

func (u *SerialUplink) Stop() {
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

func (u *SerialUplink) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *SerialUplink) Deliver(r telemetry.Reading) error {
	u.bank.Apply(r)
	return nil
}

func (u *SerialUplink) Snapshot() any {
	return u.bank.Snapshot(BankSize)
}

func (u *SerialUplink) Bank() *Bank { return u.bank }
