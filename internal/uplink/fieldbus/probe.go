// internal/uplink/fieldbus/probe.go
package fieldbus

import (
	"time"

	"github.com/goburrow/modbus"
)

const probeChunk = 125 // protocol limit per read

// Probe reads qty holding registers from a running network fieldbus
// server. Diagnostic client used by cmd/regprobe to verify what
// polling clients will see.
func Probe(endpoint string, timeout time.Duration, start, qty uint16) ([]uint16, error) {
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout

	if err := h.Connect(); err != nil {
		return nil, err
	}
	defer h.Close()

	cli := modbus.NewClient(h)

	out := make([]uint16, 0, qty)
	for qty > 0 {
		n := qty
		if n > probeChunk {
			n = probeChunk
		}
		raw, err := cli.ReadHoldingRegisters(start, n)
		if err != nil {
			return nil, err
		}
		out = append(out, unpackRegisters(raw)...)
		start += n
		qty -= n
	}
	return out, nil
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
