package gpio

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"

	"bike-tracker/internal/tracker"
)

const (
	// DefaultChip carries the LED and accelerometer lines on the tracker board.
	DefaultChip = "gpiochip0"

	// Lamp test at boot so a technician can see both LEDs work.
	LampTestMS = 500

	// FaultBlinkPeriod is the on/off period of the fatal error pattern.
	FaultBlinkPeriod = 500 * time.Millisecond
)

// outputLine is the part of *gpiocdev.Line the indicator drives.
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// Indicator drives the two status LEDs. Blue is lit while live tracking,
// green while in power save.
type Indicator struct {
	blue   outputLine
	green  outputLine
	logger func(string, ...interface{})
}

// NewIndicator requests both LED lines as outputs, initially off.
func NewIndicator(chip string, blueLine, greenLine int, logger func(string, ...interface{})) (*Indicator, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	blue, err := gpiocdev.RequestLine(chip, blueLine,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("tracker-led-blue"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request blue LED line")
	}

	green, err := gpiocdev.RequestLine(chip, greenLine,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("tracker-led-green"),
	)
	if err != nil {
		blue.Close()
		return nil, errors.Wrap(err, "failed to request green LED line")
	}

	ind := newIndicator(blue, green, logger)
	ind.log("LED indicator initialized (chip=%s, blue=%d, green=%d)", chip, blueLine, greenLine)
	return ind, nil
}

func newIndicator(blue, green outputLine, logger func(string, ...interface{})) *Indicator {
	return &Indicator{blue: blue, green: green, logger: logger}
}

// ShowMode lights the LED of the given mode and turns the other one off.
func (i *Indicator) ShowMode(mode tracker.Mode) {
	blue, green := 0, 0
	if mode == tracker.ModePowerSave {
		green = 1
	} else {
		blue = 1
	}
	if err := i.set(blue, green); err != nil {
		i.log("Failed to show mode %s: %v", mode, err)
	}
}

// LampTest pulses both LEDs once.
func (i *Indicator) LampTest() error {
	if err := i.set(1, 1); err != nil {
		return err
	}
	time.Sleep(LampTestMS * time.Millisecond)
	return i.set(0, 0)
}

// Blink toggles every LED with the given period until ctx is done. It is the
// only signal left when the tracker cannot start.
func (i *Indicator) Blink(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	on := 1
	for {
		if err := i.set(on, on); err != nil {
			i.log("Failed to blink: %v", err)
		}
		select {
		case <-ctx.Done():
			i.set(0, 0)
			return
		case <-ticker.C:
			on ^= 1
		}
	}
}

// Close turns the LEDs off and releases the lines.
func (i *Indicator) Close() error {
	i.set(0, 0)

	var firstErr error
	for _, line := range []outputLine{i.blue, i.green} {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	i.log("LED indicator closed")
	return firstErr
}

func (i *Indicator) set(blue, green int) error {
	if err := i.blue.SetValue(blue); err != nil {
		return errors.Wrap(err, "failed to set blue LED")
	}
	if err := i.green.SetValue(green); err != nil {
		return errors.Wrap(err, "failed to set green LED")
	}
	return nil
}

func (i *Indicator) log(format string, args ...interface{}) {
	i.logger("[GPIO] "+format, args...)
}
