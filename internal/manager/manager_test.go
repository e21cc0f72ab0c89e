// internal/manager/manager_test.go
package manager

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ct-gateway/internal/telemetry"
	"github.com/tamzrod/ct-gateway/internal/uplink"
)

type fakeUplink struct {
	kind       uplink.Kind
	running    bool
	startErr   error
	deliverErr error
	delivered  []telemetry.Reading
	starts     int
	stops      int
}

func (f *fakeUplink) Kind() uplink.Kind { return f.kind }

func (f *fakeUplink) Start() error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeUplink) Stop() {
	f.stops++
	f.running = false
}

func (f *fakeUplink) Running() bool { return f.running }

func (f *fakeUplink) Deliver(r telemetry.Reading) error {
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, r)
	return nil
}

func (f *fakeUplink) Snapshot() any { return len(f.delivered) }

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerStartIsExclusive(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	b := &fakeUplink{kind: uplink.FieldbusNetwork}
	m := New(testLog(), a, b)

	ok, _ := m.Start(uplink.MessageBus)
	require.True(t, ok)
	assert.True(t, a.Running())

	ok, _ = m.Start(uplink.FieldbusNetwork)
	require.True(t, ok)

	assert.False(t, a.Running())
	assert.True(t, b.Running())
	assert.Equal(t, uplink.FieldbusNetwork, m.Active())
}

func TestManagerRejectsUnknownKind(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	m := New(testLog(), a)

	ok, _ := m.Start(uplink.MessageBus)
	require.True(t, ok)

	ok, msg := m.Start(uplink.Kind("BOGUS"))
	assert.False(t, ok)
	assert.Contains(t, msg, "unknown protocol")

	// The rejected request must not disturb the running uplink.
	assert.True(t, a.Running())
	assert.Equal(t, uplink.MessageBus, m.Active())
}

func TestManagerStartAlreadyRunning(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	m := New(testLog(), a)

	ok, _ := m.Start(uplink.MessageBus)
	require.True(t, ok)
	ok, _ = m.Start(uplink.MessageBus)
	require.True(t, ok)

	assert.Equal(t, 1, a.starts)
}

func TestManagerStartFailureLeavesNoActive(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus, startErr: errors.New("broker refused")}
	m := New(testLog(), a)

	ok, msg := m.Start(uplink.MessageBus)
	assert.False(t, ok)
	assert.Contains(t, msg, "broker refused")
	assert.Equal(t, uplink.None, m.Active())
	assert.Contains(t, m.LastError(), "broker refused")
}

func TestManagerDeliverRoutesToActive(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	b := &fakeUplink{kind: uplink.BatchFile}
	m := New(testLog(), a, b)

	r := telemetry.Reading{DeviceID: "AABBCCDD", Channel: 2, Value: 13.37, Unit: "A"}

	// No active uplink: delivery is a silent no-op.
	require.NoError(t, m.Deliver(r))
	assert.Empty(t, a.delivered)

	m.Start(uplink.BatchFile)
	require.NoError(t, m.Deliver(r))
	assert.Empty(t, a.delivered)
	assert.Len(t, b.delivered, 1)
}

func TestManagerDeliverFailureNeverPropagates(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus, deliverErr: errors.New("publish timeout")}
	m := New(testLog(), a)
	m.Start(uplink.MessageBus)

	err := m.Deliver(telemetry.Reading{DeviceID: "AABBCCDD"})
	assert.NoError(t, err)
	assert.Contains(t, m.LastError(), "publish timeout")
}

type countingObserver struct {
	ok     int
	failed int
}

func (o *countingObserver) DeliverySucceeded(uplink.Kind)     { o.ok++ }
func (o *countingObserver) DeliveryFailed(uplink.Kind, error) { o.failed++ }

func TestManagerNotifiesObserver(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	m := New(testLog(), a)
	obs := &countingObserver{}
	m.SetObserver(obs)
	m.Start(uplink.MessageBus)

	m.Deliver(telemetry.Reading{DeviceID: "AABBCCDD"})
	assert.Equal(t, 1, obs.ok)

	a.deliverErr = errors.New("publish timeout")
	m.Deliver(telemetry.Reading{DeviceID: "AABBCCDD"})
	assert.Equal(t, 1, obs.failed)
}

func TestManagerStopAndStopAll(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	b := &fakeUplink{kind: uplink.FieldbusNetwork}
	m := New(testLog(), a, b)

	m.Start(uplink.MessageBus)
	m.Stop(uplink.MessageBus)
	assert.False(t, a.Running())
	assert.Equal(t, uplink.None, m.Active())

	m.Start(uplink.FieldbusNetwork)
	m.StopAll()
	assert.False(t, b.Running())
	assert.Equal(t, uplink.None, m.Active())
}

// slowStartUplink blocks in Start until released, standing in for a
// broker connect that takes its full timeout.
type slowStartUplink struct {
	fakeUplink
	entered chan struct{}
	release chan struct{}
}

func (s *slowStartUplink) Start() error {
	close(s.entered)
	<-s.release
	s.running = true
	return nil
}

func TestManagerDeliverNotBlockedByProtocolSwitch(t *testing.T) {
	slow := &slowStartUplink{
		fakeUplink: fakeUplink{kind: uplink.MessageBus},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	m := New(testLog(), slow)

	switched := make(chan struct{})
	go func() {
		m.Start(uplink.MessageBus)
		close(switched)
	}()
	<-slow.entered // switch is now inside the blocking connect

	delivered := make(chan struct{})
	go func() {
		m.Deliver(telemetry.Reading{DeviceID: "AABBCCDD"})
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("delivery stalled behind a protocol switch")
	}

	close(slow.release)
	<-switched
	assert.True(t, m.Running(uplink.MessageBus))
	assert.Equal(t, uplink.MessageBus, m.Active())
}

func TestManagerLatestData(t *testing.T) {
	a := &fakeUplink{kind: uplink.MessageBus}
	m := New(testLog(), a)

	assert.Nil(t, m.LatestData())

	m.Start(uplink.MessageBus)
	m.Deliver(telemetry.Reading{DeviceID: "AABBCCDD"})
	assert.Equal(t, 1, m.LatestData())
}
