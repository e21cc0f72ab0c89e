// internal/telemetry/parse_test.go
package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse_WellFormedLine(t *testing.T) {
	at := time.Now()
	r := Parse("AABBCCDD,2,13.37A", at)

	assert.Equal(t, "AABBCCDD", r.DeviceID)
	assert.Equal(t, 2, r.Channel)
	assert.Equal(t, 13.37, r.Value)
	assert.Equal(t, "A", r.Unit)
	assert.Equal(t, at, r.CapturedAt)
}

func TestParse_UnitPerChannel(t *testing.T) {
	at := time.Now()

	for ch := 0; ch <= 6; ch++ {
		r := Parse("AABBCCDD,"+string(rune('0'+ch))+",1.0", at)
		assert.Equal(t, "A", r.Unit, "channel %d", ch)
	}

	r := Parse("AABBCCDD,7,230.0", at)
	assert.Equal(t, "V", r.Unit)

	r = Parse("AABBCCDD,9,1.0", at)
	assert.Equal(t, "N/A", r.Unit)
}

func TestParse_LeadingNonHexStripped(t *testing.T) {
	r := Parse("id:AABBCCDD,3,2.5", time.Now())
	// stripping stops at the first hex digit; 'd' in "id:" qualifies
	assert.Equal(t, "d:AABBCCDD", r.DeviceID)

	r = Parse(">>>AABBCCDD,3,2.5", time.Now())
	assert.Equal(t, "AABBCCDD", r.DeviceID)
}

func TestParse_NumericDefaults(t *testing.T) {
	r := Parse("AABBCCDD,ch?,volts", time.Now())
	assert.Equal(t, 0, r.Channel)
	assert.Equal(t, 0.0, r.Value)
	assert.Equal(t, "A", r.Unit)
}

func TestParse_NegativeValue(t *testing.T) {
	r := Parse("AABBCCDD,4,-2.50A", time.Now())
	assert.Equal(t, -2.5, r.Value)
}

func TestParse_GarbageYieldsSentinel(t *testing.T) {
	at := time.Now()

	for _, line := range []string{"garbage", "", "a,b", ",,,"} {
		r := Parse(line, at)
		assert.Equal(t, Sentinel(at), r, "line %q", line)
	}
}
