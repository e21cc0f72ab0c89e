// internal/telemetry/parse.go
package telemetry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	leadingNonHex = regexp.MustCompile(`^[^0-9A-Fa-f]+`)
	firstInteger  = regexp.MustCompile(`\d+`)
	firstDecimal  = regexp.MustCompile(`[+-]?\d*\.?\d+`)
)

// Parse turns one raw serial line into a Reading. The format is
// "<device>,<channel>,<value>[unit]" with at least three comma fields.
// Parsing is permissive: the device id is the first field stripped of
// leading non-hex characters, channel and value fall back to 0 when no
// number is found, and a line that yields nothing at all becomes the
// sentinel reading. Parse never fails.
func Parse(line string, at time.Time) Reading {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 3 {
		return Sentinel(at)
	}

	deviceID := leadingNonHex.ReplaceAllString(strings.TrimSpace(parts[0]), "")

	channel := 0
	chFound := firstInteger.FindString(parts[1])
	if chFound != "" {
		channel, _ = strconv.Atoi(chFound)
	}

	value := 0.0
	valFound := firstDecimal.FindString(parts[2])
	if valFound != "" {
		value, _ = strconv.ParseFloat(valFound, 64)
	}

	if deviceID == "" && chFound == "" && valFound == "" {
		return Sentinel(at)
	}

	return Reading{
		CapturedAt: at,
		DeviceID:   deviceID,
		Channel:    channel,
		Value:      value,
		Unit:       UnitForChannel(channel),
	}
}
