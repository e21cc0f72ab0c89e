// internal/uplink/fieldbus/bank.go
package fieldbus

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
)

// Register layout. Each device owns a fixed 100-register block starting
// at a base assigned first-come-first-served:
//
//	base+0 .. base+3   device id, 16 hex chars packed 4 per register
//	base+4 .. base+11  channels 0..7, value scaled by 100
//
// Bases start at 101 and advance by 100, so polling clients get a
// stable address scheme without a discovery protocol.
const (
	FirstBase         = 101
	BaseStride        = 100
	DefaultMaxDevices = 10

	// BankSize covers the reserved registers below FirstBase plus one
	// full block for every allocatable device, so the last device's
	// block (base 1001..1100) is addressable like the first.
	BankSize = FirstBase + DefaultMaxDevices*BaseStride

	idRegisterCount  = 4
	channelOffset    = 4
	channelCount     = 8
	deviceIDHexWidth = 16
)

// Bank owns the holding registers and the device allocation table. One
// mutex covers both; reads hand out copies only.
type Bank struct {
	log *slog.Logger

	mu         sync.Mutex
	regs       []uint16
	bases      map[string]uint16
	nextBase   uint16
	maxDevices int
}

func NewBank(log *slog.Logger) *Bank {
	return &Bank{
		log:        log,
		regs:       make([]uint16, BankSize),
		bases:      make(map[string]uint16),
		nextBase:   FirstBase,
		maxDevices: DefaultMaxDevices,
	}
}

// Apply maps one reading into the register bank. An unseen device gets
// the next free block; once the device cap is reached further unseen
// devices are dropped with a warning and the registers stay unchanged.
func (b *Bank) Apply(r telemetry.Reading) {
	if r.DeviceID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	base, seen := b.bases[r.DeviceID]
	if !seen {
		if len(b.bases) >= b.maxDevices {
			b.log.Warn("device cap reached, register mapping dropped",
				"device", r.DeviceID, "max", b.maxDevices)
			return
		}
		base = b.nextBase
		b.bases[r.DeviceID] = base
		b.nextBase += BaseStride

		words, err := EncodeDeviceID(r.DeviceID)
		if err != nil {
			b.log.Warn("device id not register-encodable", "device", r.DeviceID, "err", err)
		} else {
			copy(b.regs[base:int(base)+idRegisterCount], words[:])
			b.log.Info("allocated register block", "device", r.DeviceID, "base", base)
		}
	}

	if r.Channel >= 0 && r.Channel < channelCount {
		b.regs[int(base)+channelOffset+r.Channel] = ScaleValue(r.Value)
	}
}

// Read returns a copy of qty registers starting at start, or false when
// the range falls outside the bank.
func (b *Bank) Read(start, qty int) ([]uint16, bool) {
	if start < 0 || qty < 0 || start+qty > BankSize {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint16, qty)
	copy(out, b.regs[start:start+qty])
	return out, true
}

// Snapshot returns a copy of the first n registers (clamped to the
// bank size) for inspection.
func (b *Bank) Snapshot(n int) []uint16 {
	if n > BankSize {
		n = BankSize
	}
	if n < 0 {
		n = 0
	}
	out, _ := b.Read(0, n)
	return out
}

// DeviceBase reports the block base allocated to a device, if any.
func (b *Bank) DeviceBase(deviceID string) (uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	base, ok := b.bases[deviceID]
	return base, ok
}

func (b *Bank) DeviceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bases)
}

// ScaleValue packs a reading value into one register with two decimal
// digits of precision. Negative values survive as two's complement.
func ScaleValue(v float64) uint16 {
	return uint16(int32(math.Round(v * 100)))
}

// UnscaleValue is the inverse of ScaleValue.
func UnscaleValue(reg uint16) float64 {
	return float64(int16(reg)) / 100
}

// PadDeviceID brings a device id to its canonical 16-hex-character
// register form: truncated or right-padded with '0'.
func PadDeviceID(id string) string {
	if len(id) >= deviceIDHexWidth {
		return id[:deviceIDHexWidth]
	}
	padded := make([]byte, deviceIDHexWidth)
	copy(padded, id)
	for i := len(id); i < deviceIDHexWidth; i++ {
		padded[i] = '0'
	}
	return string(padded)
}

// EncodeDeviceID packs the padded id into four registers, four hex
// characters each.
func EncodeDeviceID(id string) ([idRegisterCount]uint16, error) {
	var words [idRegisterCount]uint16
	padded := PadDeviceID(id)

	for i := 0; i < idRegisterCount; i++ {
		group := padded[i*4 : (i+1)*4]
		v, err := strconv.ParseUint(group, 16, 16)
		if err != nil {
			return words, fmt.Errorf("fieldbus: device id group %q is not hex: %w", group, err)
		}
		words[i] = uint16(v)
	}
	return words, nil
}

// DecodeDeviceID is the inverse of EncodeDeviceID; it yields the padded
// 16-hex-character form in upper case.
func DecodeDeviceID(words [idRegisterCount]uint16) string {
	return fmt.Sprintf("%04X%04X%04X%04X", words[0], words[1], words[2], words[3])
}
