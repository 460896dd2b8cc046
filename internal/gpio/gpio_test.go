package gpio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiocdev"

	"bike-tracker/internal/tracker"
)

type fakeLine struct {
	mu     sync.Mutex
	values []int
	closed bool
	err    error
}

func (l *fakeLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.values = append(l.values, v)
	return nil
}

func (l *fakeLine) Close() error {
	l.closed = true
	return nil
}

func (l *fakeLine) last() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.values) == 0 {
		return -1
	}
	return l.values[len(l.values)-1]
}

func (l *fakeLine) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

func TestShowMode(t *testing.T) {
	blue, green := &fakeLine{}, &fakeLine{}
	ind := newIndicator(blue, green, func(string, ...interface{}) {})

	ind.ShowMode(tracker.ModeTracking)
	assert.Equal(t, 1, blue.last())
	assert.Equal(t, 0, green.last())

	ind.ShowMode(tracker.ModePowerSave)
	assert.Equal(t, 0, blue.last())
	assert.Equal(t, 1, green.last())
}

func TestShowModeLogsLineErrors(t *testing.T) {
	var logged []string
	blue := &fakeLine{err: errors.New("line gone")}
	ind := newIndicator(blue, &fakeLine{}, func(format string, args ...interface{}) {
		logged = append(logged, format)
	})

	ind.ShowMode(tracker.ModeTracking)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "[GPIO]")
}

func TestBlinkUntilCancelled(t *testing.T) {
	blue, green := &fakeLine{}, &fakeLine{}
	ind := newIndicator(blue, green, func(string, ...interface{}) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ind.Blink(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return blue.count() >= 4 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Blink did not return after cancel")
	}
	assert.Equal(t, 0, blue.last())
	assert.Equal(t, 0, green.last())
}

func TestIndicatorClose(t *testing.T) {
	blue, green := &fakeLine{}, &fakeLine{}
	ind := newIndicator(blue, green, func(string, ...interface{}) {})

	require.NoError(t, ind.Close())
	assert.True(t, blue.closed)
	assert.True(t, green.closed)
	assert.Equal(t, 0, blue.last())
}

func TestMotionLatch(t *testing.T) {
	m := NewMotionSensor(DefaultChip, 5, nil)

	assert.False(t, m.TakeAndReset())

	m.onEvent(gpiocdev.LineEvent{Offset: 5})
	m.onEvent(gpiocdev.LineEvent{Offset: 5})

	select {
	case <-m.Wake():
	default:
		t.Fatal("expected a wake signal")
	}
	select {
	case <-m.Wake():
		t.Fatal("wake signals must coalesce")
	default:
	}

	assert.True(t, m.TakeAndReset())
	assert.False(t, m.TakeAndReset())
}

func TestDisarmWhenNotArmed(t *testing.T) {
	m := NewMotionSensor(DefaultChip, 5, nil)
	assert.NoError(t, m.Disarm())
	assert.NoError(t, m.Close())
}
