// internal/uplink/uplink.go
package uplink

import (
	"time"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
)

// Kind identifies one delivery protocol. Values match the protocol
// names in the config file.
type Kind string

const (
	None            Kind = ""
	SerialSource    Kind = "UART"
	MessageBus      Kind = "MQTT"
	FieldbusSerial  Kind = "RTU"
	FieldbusNetwork Kind = "TCP"
	BatchFile       Kind = "FTP"
)

// Uplink is one outward delivery mechanism. Implementations must make
// Start/Stop idempotent and must never panic on transport failure:
// an unreachable peer is logged and leaves the uplink not running.
type Uplink interface {
	Kind() Kind

	// Start brings the uplink up. A configuration problem is returned
	// as an error; a merely-unreachable peer may instead leave the
	// uplink in a not-running state without an error.
	Start() error
	Stop()
	Running() bool

	// Deliver hands one reading to the uplink for protocol-specific
	// handling (publish, register write, or enqueue).
	Deliver(r telemetry.Reading) error

	// Snapshot is a protocol-specific copy of the uplink's latest
	// observable data: register contents, pending rows, or received
	// messages.
	Snapshot() any
}

// ConnectionState is the coarse link state shown in status reports.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// Status is the observational record the coordinator keeps per
// protocol. It mirrors lifecycle and delivery events; it is never the
// source of truth for whether an uplink is actually running.
type Status struct {
	Name            Kind
	Description     string
	Configured      bool
	Running         bool
	ConnectionState ConnectionState
	StartedAt       time.Time
	LastActivity    time.Time
	ErrorCount      int
	LastError       string
	Delivered       int
}
