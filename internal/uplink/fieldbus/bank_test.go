// internal/uplink/fieldbus/bank_test.go
package fieldbus

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sample(dev string, ch int, v float64) telemetry.Reading {
	return telemetry.Reading{
		CapturedAt: time.Now(),
		DeviceID:   dev,
		Channel:    ch,
		Value:      v,
		Unit:       telemetry.UnitForChannel(ch),
	}
}

func TestBank_AllocationIsStableAndStrided(t *testing.T) {
	b := NewBank(testLogger())

	b.Apply(sample("AA01", 0, 1))
	b.Apply(sample("BB02", 0, 1))
	b.Apply(sample("AA01", 1, 2)) // seen before: no new block

	base1, ok := b.DeviceBase("AA01")
	require.True(t, ok)
	base2, ok := b.DeviceBase("BB02")
	require.True(t, ok)

	assert.Equal(t, uint16(FirstBase), base1)
	assert.Equal(t, uint16(FirstBase+BaseStride), base2)
	assert.NotEqual(t, base1, base2)
	assert.Equal(t, 2, b.DeviceCount())
}

func TestBank_DeviceCapRejectsWithoutSideEffects(t *testing.T) {
	b := NewBank(testLogger())

	for i := 0; i < DefaultMaxDevices; i++ {
		b.Apply(sample(fmt.Sprintf("DEV%02d", i), 0, 1))
	}
	require.Equal(t, DefaultMaxDevices, b.DeviceCount())

	before := b.Snapshot(BankSize)
	b.Apply(sample("0VERFL0W", 0, 99))

	assert.Equal(t, DefaultMaxDevices, b.DeviceCount())
	_, ok := b.DeviceBase("0VERFL0W")
	assert.False(t, ok)
	assert.Equal(t, before, b.Snapshot(BankSize))
}

func TestBank_LastDeviceBlockFitsInBank(t *testing.T) {
	b := NewBank(testLogger())

	for i := 0; i < DefaultMaxDevices; i++ {
		dev := fmt.Sprintf("DEV%02d", i)
		b.Apply(sample(dev, 0, 1.23))
		b.Apply(sample(dev, 7, 230.0))
	}
	require.Equal(t, DefaultMaxDevices, b.DeviceCount())

	// The last block sits at the top of the address space and must be
	// fully readable like the first.
	base, ok := b.DeviceBase(fmt.Sprintf("DEV%02d", DefaultMaxDevices-1))
	require.True(t, ok)
	assert.Equal(t, uint16(FirstBase+(DefaultMaxDevices-1)*BaseStride), base)
	require.LessOrEqual(t, int(base)+BaseStride, BankSize)

	regs, ok := b.Read(int(base), BaseStride)
	require.True(t, ok)
	assert.Equal(t, uint16(123), regs[channelOffset])
	assert.Equal(t, uint16(23000), regs[channelOffset+7])
}

func TestBank_EmptyDeviceIgnored(t *testing.T) {
	b := NewBank(testLogger())
	b.Apply(sample("", 0, 1))
	assert.Equal(t, 0, b.DeviceCount())
}

func TestBank_OutOfRangeChannelWritesNoValue(t *testing.T) {
	b := NewBank(testLogger())
	b.Apply(sample("AA01", 9, 123.45))

	base, ok := b.DeviceBase("AA01")
	require.True(t, ok)

	regs, ok := b.Read(int(base)+channelOffset, channelCount)
	require.True(t, ok)
	for i, r := range regs {
		assert.Zero(t, r, "channel register %d", i)
	}
}

func TestEncodeDeviceID_RoundTrip(t *testing.T) {
	words, err := EncodeDeviceID("AABBCCDD")
	require.NoError(t, err)

	assert.Equal(t, [4]uint16{0xAABB, 0xCCDD, 0x0000, 0x0000}, words)

	decoded := DecodeDeviceID(words)
	assert.Equal(t, PadDeviceID("AABBCCDD"), decoded)

	// Re-encoding the decoded form is idempotent.
	again, err := EncodeDeviceID(decoded)
	require.NoError(t, err)
	assert.Equal(t, words, again)
}

func TestEncodeDeviceID_TruncatesLongIDs(t *testing.T) {
	words, err := EncodeDeviceID("00112233445566778899")
	require.NoError(t, err)
	assert.Equal(t, [4]uint16{0x0011, 0x2233, 0x4455, 0x6677}, words)
}

func TestEncodeDeviceID_RejectsNonHex(t *testing.T) {
	_, err := EncodeDeviceID("N/A")
	assert.Error(t, err)
}

func TestScaleValue_RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.23, 4.56, 230.0, 13.37, -2.5, 0.01} {
		assert.Equal(t, v, UnscaleValue(ScaleValue(v)), "value %v", v)
	}
}

func TestBank_ThreeChannelScenario(t *testing.T) {
	b := NewBank(testLogger())

	b.Apply(sample("AABBCCDD", 0, 1.23))
	b.Apply(sample("AABBCCDD", 1, 4.56))
	b.Apply(sample("AABBCCDD", 7, 230.0))

	base, ok := b.DeviceBase("AABBCCDD")
	require.True(t, ok)
	require.Equal(t, uint16(FirstBase), base)

	regs, ok := b.Read(int(base), BaseStride)
	require.True(t, ok)

	assert.Equal(t, uint16(0xAABB), regs[0])
	assert.Equal(t, uint16(0xCCDD), regs[1])
	assert.Equal(t, uint16(0x0000), regs[2])
	assert.Equal(t, uint16(0x0000), regs[3])

	assert.Equal(t, uint16(123), regs[4])    // channel 0
	assert.Equal(t, uint16(456), regs[5])    // channel 1
	assert.Equal(t, uint16(23000), regs[11]) // channel 7
}

func TestBank_ReadBounds(t *testing.T) {
	b := NewBank(testLogger())

	_, ok := b.Read(BankSize-1, 2)
	assert.False(t, ok)
	_, ok = b.Read(-1, 1)
	assert.False(t, ok)

	regs, ok := b.Read(BankSize-1, 1)
	assert.True(t, ok)
	assert.Len(t, regs, 1)
}
