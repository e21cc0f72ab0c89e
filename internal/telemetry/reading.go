// internal/telemetry/reading.go
package telemetry

import "time"

// TimeLayout is the timestamp format used in log rows and broker
// payloads.
const TimeLayout = "2006-01-02 15:04:05"

// Reading is one normalized telemetry sample. Immutable after creation;
// the buffer and the uplinks only ever see copies.
type Reading struct {
	CapturedAt time.Time
	DeviceID   string
	Channel    int
	Value      float64
	Unit       string
}

// UnitForChannel maps a channel to its measurement unit.
// Channels 0-6 carry current, channel 7 carries voltage.
func UnitForChannel(ch int) string {
	switch {
	case ch >= 0 && ch <= 6:
		return "A"
	case ch == 7:
		return "V"
	default:
		return "N/A"
	}
}

// Sentinel is the reading produced for a line that could not be parsed.
func Sentinel(at time.Time) Reading {
	return Reading{
		CapturedAt: at,
		DeviceID:   "N/A",
		Channel:    0,
		Value:      0.0,
		Unit:       "N/A",
	}
}
