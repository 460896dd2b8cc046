package gpio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// MotionDebounce filters contact bounce on the accelerometer interrupt pin.
const MotionDebounce = 10 * time.Millisecond

// MotionSensor latches the open-drain interrupt line of the accelerometer.
// The line is only requested while armed, so the sensor costs nothing in
// live tracking mode.
type MotionSensor struct {
	chip   string
	offset int
	logger func(string, ...interface{})

	mu       sync.Mutex
	line     *gpiocdev.Line
	detected atomic.Bool
	wake     chan struct{}
}

// NewMotionSensor returns a disarmed sensor on the given line.
func NewMotionSensor(chip string, offset int, logger func(string, ...interface{})) *MotionSensor {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	return &MotionSensor{
		chip:   chip,
		offset: offset,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Check requests the line once and releases it, so a wrong chip or offset
// fails at boot rather than at the first power save.
func (m *MotionSensor) Check() error {
	line, err := gpiocdev.RequestLine(m.chip, m.offset,
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("tracker-motion"),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to request motion line %s/%d", m.chip, m.offset)
	}
	return line.Close()
}

// Wake fires whenever an edge is latched. The host sleeps on it.
func (m *MotionSensor) Wake() <-chan struct{} {
	return m.wake
}

// Arm starts watching for falling edges. Arming an armed sensor is a no-op.
func (m *MotionSensor) Arm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.line != nil {
		return nil
	}

	line, err := gpiocdev.RequestLine(m.chip, m.offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(MotionDebounce),
		gpiocdev.WithEventHandler(m.onEvent),
		gpiocdev.WithConsumer("tracker-motion"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to arm motion sensor")
	}

	m.line = line
	m.log("Motion sensor armed (chip=%s, line=%d)", m.chip, m.offset)
	return nil
}

// Disarm stops watching. Disarming a disarmed sensor is a no-op.
func (m *MotionSensor) Disarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.line == nil {
		return nil
	}

	err := m.line.Close()
	m.line = nil
	m.log("Motion sensor disarmed")
	return err
}

// TakeAndReset reports whether an edge was latched since the last call and
// clears the latch.
func (m *MotionSensor) TakeAndReset() bool {
	return m.detected.Swap(false)
}

// Close releases the line if armed.
func (m *MotionSensor) Close() error {
	return m.Disarm()
}

// onEvent runs on the gpiocdev watcher goroutine.
func (m *MotionSensor) onEvent(gpiocdev.LineEvent) {
	m.detected.Store(true)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *MotionSensor) log(format string, args ...interface{}) {
	m.logger("[GPIO] "+format, args...)
}
