package tracker

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enterPowerSave parks the bike: a first fix at t=0 followed by nine idle
// probes every 20s, the ninth (t=180) triggering power save.
func enterPowerSave(t *testing.T, f *fixture) {
	t.Helper()

	for i := 0; i < 10; i++ {
		f.positions.push(home)
	}
	f.tick(0)
	for k := 1; k <= 9; k++ {
		f.tick(float64(20 * k))
	}
	require.Equal(t, ModePowerSave, f.ctrl.Mode())
}

func TestFirstFixIsNotClassified(t *testing.T) {
	f := newFixture()
	f.positions.push(home)

	sleep := f.tick(0)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModeTracking, snap.Mode)
	assert.True(t, snap.HasPosition)
	assert.Empty(t, snap.IdleWindow, "first fix must not populate the idle window")
	assert.Zero(t, snap.IdleCount)
	assert.Equal(t, []ProbeResult{ProbeUnknown}, f.observer.results)
	assert.Equal(t, 120.0, snap.SmoothedAlt)
	assert.Equal(t, f.at(20), snap.NextProbe)
	assert.Equal(t, f.at(180), snap.NextMessage)
	assert.Equal(t, 20*time.Second, sleep)

	assert.Equal(t, []Mode{ModeTracking}, f.observer.modes)
	assert.Equal(t, 1, f.positions.wakes)
	assert.False(t, f.motion.armed)
}

func TestNoFixRetriesAfterGPSRetryDelay(t *testing.T) {
	f := newFixture()

	sleep := f.tick(0)

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.HasPosition)
	assert.Equal(t, f.at(5), snap.NextProbe)
	assert.Equal(t, 5*time.Second, sleep)
	assert.Equal(t, []ProbeResult{ProbeNoFix}, f.observer.results)
}

func TestPositionSourceErrorIsNoFix(t *testing.T) {
	f := newFixture()
	f.positions.err = errors.New("gpsd unreachable")

	f.tick(0)

	assert.Equal(t, []ProbeResult{ProbeNoFix}, f.observer.results)
	assert.Equal(t, f.at(5), f.ctrl.Snapshot().NextProbe)
}

func TestNineIdleProbesEnterPowerSave(t *testing.T) {
	f := newFixture()
	for i := 0; i < 10; i++ {
		f.positions.push(home)
	}

	f.tick(0)
	for k := 1; k <= 8; k++ {
		f.tick(float64(20 * k))
		snap := f.ctrl.Snapshot()
		require.Equal(t, ModeTracking, snap.Mode, "probe %d", k)
		require.Equal(t, k, snap.IdleCount)
	}

	sleep := f.tick(180)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModePowerSave, snap.Mode)
	assert.Empty(t, snap.IdleWindow)
	assert.Zero(t, snap.IdleCount)
	assert.Equal(t, f.at(180+3600), snap.NextProbe)
	assert.Equal(t, time.Hour, sleep)
	assert.True(t, f.positions.asleep)
	assert.True(t, f.motion.armed)
	assert.Equal(t, []Mode{ModeTracking, ModePowerSave}, f.observer.modes)

	require.Len(t, f.radio.payloads, 1)
	msg := f.radio.last()
	assert.Equal(t, float32(home.Lat), msg.Lat)
	assert.Equal(t, float32(home.Lng), msg.Lng)
	assert.Equal(t, uint8(15), msg.Alt)
	assert.Zero(t, msg.Dist)
}

func TestInterleavedMovingProbesStayTracking(t *testing.T) {
	f := newFixture()

	n := 0
	f.positions.push(moved(n))
	f.tick(0)

	for i := 1; i <= 36; i++ {
		if i%3 == 0 {
			n++
		}
		f.positions.push(moved(n))
		f.tick(float64(20 * i))

		snap := f.ctrl.Snapshot()
		require.Equal(t, ModeTracking, snap.Mode, "probe %d", i)
		require.LessOrEqual(t, snap.IdleCount, 8)
		require.LessOrEqual(t, len(snap.IdleWindow), 12)
	}
}

func TestTransmitFailureKeepsAccumulators(t *testing.T) {
	f := newFixture()
	for k := 0; k <= 8; k++ {
		f.positions.push(moved(k))
	}
	f.tick(0)
	for k := 1; k <= 8; k++ {
		f.tick(float64(20 * k))
	}

	before := f.ctrl.Snapshot()
	require.Greater(t, before.Distance, 800.0)
	require.Greater(t, before.MaxSpeed, 5.0)

	f.radio.fail = true
	sleep := f.tick(180)

	after := f.ctrl.Snapshot()
	assert.Equal(t, before.Distance, after.Distance)
	assert.Equal(t, before.AltGain, after.AltGain)
	assert.Equal(t, before.MaxSpeed, after.MaxSpeed)
	assert.Equal(t, f.at(180+60), after.NextMessage)
	assert.Equal(t, 5*time.Second, sleep) // the probe found no fix
	assert.Equal(t, []error{errSend}, f.observer.sends)

	f.radio.fail = false
	f.tick(240)

	delivered := f.ctrl.Snapshot()
	assert.Zero(t, delivered.Distance)
	assert.Zero(t, delivered.AltGain)
	assert.Zero(t, delivered.MaxSpeed)
	assert.Equal(t, f.at(240), delivered.LastMessage)
	assert.Equal(t, f.at(240+180), delivered.NextMessage)

	require.Len(t, f.radio.payloads, 2)
	assert.Equal(t, f.radio.payloads[0], f.radio.payloads[1], "the retry carries the same totals")
	msg := f.radio.last()
	assert.Equal(t, uint8(56), msg.Dist) // 8 * ~111.2m / 16
	assert.Equal(t, float32(moved(8).Lat), msg.Lat)
}

func TestMessageWithoutFreshFixHasZeroLocation(t *testing.T) {
	f := newFixture()
	f.positions.push(home)
	f.tick(0)

	f.tick(180)
	require.Len(t, f.radio.payloads, 1)
	assert.True(t, f.radio.last().HasLocation())

	f.tick(360)
	require.Len(t, f.radio.payloads, 2)
	msg := f.radio.last()
	assert.False(t, msg.HasLocation())
	assert.Equal(t, uint8(15), msg.Alt)
}

func TestAltitudeChangeAloneIsIdle(t *testing.T) {
	f := newFixture()
	f.positions.push(home, fix(home.Lat, home.Lng, 620))

	f.tick(0)
	f.tick(20)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, []ProbeResult{ProbeUnknown, ProbeIdle}, f.observer.results)
	assert.Equal(t, []bool{true}, snap.IdleWindow)
	assert.Zero(t, snap.Distance)
	assert.Zero(t, snap.AltGain)
	assert.InDelta(t, 220.0, snap.SmoothedAlt, 1e-9)
}

func TestMovingProbeAccumulates(t *testing.T) {
	f := newFixture()
	climb := moved(1)
	climb.Alt = 170
	descent := moved(2)
	descent.Alt = 120
	f.positions.push(home, climb, descent)

	f.tick(0)
	f.tick(20)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ProbeMoving, f.observer.results[1])
	assert.InDelta(t, 10.0, snap.AltGain, 1e-9)  // smoothed 120 -> 130
	assert.InDelta(t, 121.9, snap.Distance, 0.5) // hypot(111.2, 50)
	assert.InDelta(t, snap.Distance/20, snap.MaxSpeed, 1e-9)

	f.tick(40)

	snap = f.ctrl.Snapshot()
	assert.InDelta(t, 10.0, snap.AltGain, 1e-9, "descending never adds gain")
	assert.InDelta(t, 128.0, snap.SmoothedAlt, 1e-9)
	assert.Equal(t, []bool{false, false}, snap.IdleWindow)
}

func TestMotionWakesPowerSave(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)
	probes := len(f.observer.results)

	f.motion.fire()
	sleep := f.tick(181)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModeTracking, snap.Mode)
	assert.False(t, f.motion.armed)
	assert.False(t, f.positions.asleep)
	assert.Empty(t, snap.IdleWindow)
	assert.Zero(t, snap.IdleCount)
	assert.Equal(t, f.at(181), snap.NextProbe)
	assert.Equal(t, f.at(360), snap.NextMessage, "an earlier pending transmit is kept")
	assert.Equal(t, 500*time.Millisecond, sleep)
	assert.Len(t, f.observer.results, probes, "motion alone does not probe")
}

func TestMotionBeforeArmingIsDiscarded(t *testing.T) {
	f := newFixture()
	f.motion.detected = true // latched while still tracking

	enterPowerSave(t, f)
	f.tick(200)

	assert.Equal(t, ModePowerSave, f.ctrl.Mode())
}

func TestPowerSaveProbeSendsAndSleepsGPS(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)
	sleeps := f.positions.sleeps

	f.positions.push(home)
	sleep := f.tick(3780)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModePowerSave, snap.Mode)
	assert.Equal(t, sleeps+1, f.positions.sleeps)
	assert.True(t, f.positions.asleep)
	assert.Len(t, f.radio.payloads, 2)
	assert.True(t, snap.NextMessage.IsZero(), "nothing left to send until the next probe")
	assert.Equal(t, f.at(3780+3600), snap.NextProbe)
	assert.Equal(t, time.Hour, sleep)
}

func TestPowerSaveFailedSendRetriesOnNextWake(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)

	f.radio.fail = true
	f.positions.push(home)
	sleep := f.tick(3780)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, f.at(3780+60), snap.NextMessage)
	assert.Equal(t, time.Hour, sleep, "the retry waits for the next probe wake")
}

func TestPowerSaveNoFixRetriesQuickly(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)

	sleep := f.tick(3780)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModePowerSave, snap.Mode)
	assert.Equal(t, f.at(3785), snap.NextProbe)
	assert.Equal(t, 5*time.Second, sleep)

	// The transmit scheduled while tracking is still honoured.
	assert.Len(t, f.radio.payloads, 2)
	assert.True(t, snap.NextMessage.IsZero())
}

func TestPowerSaveMovingProbeReturnsToTracking(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)

	f.positions.push(moved(100)) // ~11km in an hour
	f.tick(3780)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModeTracking, snap.Mode)
	assert.Equal(t, ProbeMoving, f.observer.results[len(f.observer.results)-1])
	assert.False(t, f.positions.asleep)
	assert.Equal(t, f.at(3780), snap.NextProbe)
	assert.Equal(t, f.at(3780+180), snap.NextMessage)

	require.Len(t, f.radio.payloads, 2)
	assert.Equal(t, uint8(255), f.radio.last().Dist, "distance clamps at the byte range")
	assert.Zero(t, snap.Distance)
}

func TestProbeAtSameInstantIsIgnored(t *testing.T) {
	f := newFixture()
	enterPowerSave(t, f)
	before := f.ctrl.Snapshot()

	// Motion at the very instant of the last fix, then an immediate probe.
	f.motion.fire()
	f.tick(180)
	f.positions.push(moved(5))
	f.tick(180)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ProbeNoFix, f.observer.results[len(f.observer.results)-1])
	assert.Equal(t, before.LastPosition, snap.LastPosition)
	assert.Equal(t, before.Distance, snap.Distance)
	assert.Equal(t, f.at(185), snap.NextProbe)
}

func TestClockGoingBackwardsResetsSchedules(t *testing.T) {
	f := newFixture()
	f.positions.push(home, home)
	f.tick(0)
	f.tick(20)
	require.Equal(t, 1, f.ctrl.Snapshot().IdleCount)

	f.positions.push(home)
	f.tick(-100)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, ModeTracking, snap.Mode)
	assert.Zero(t, snap.IdleCount)
	assert.Equal(t, ProbeUnknown, f.observer.results[len(f.observer.results)-1])
	assert.Equal(t, f.at(-80), snap.NextProbe)
	assert.Equal(t, f.at(80), snap.NextMessage)
}

func TestNewValidatesInput(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	deps := Deps{Positions: &fakePositions{}, Radio: &fakeRadio{}, Motion: &fakeMotion{}}

	_, err := New(DefaultConfig(), deps, logger)
	assert.NoError(t, err)

	_, err = New(DefaultConfig(), Deps{Positions: &fakePositions{}}, logger)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.IdleCountThreshold = 13
	_, err = New(cfg, deps, logger)
	assert.Error(t, err)
}
