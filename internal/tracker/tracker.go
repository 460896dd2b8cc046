// Package tracker implements the scheduling core of the bike tracker: on
// every wake tick it decides whether to probe the GPS, whether to transmit,
// whether to change power mode, and how long to sleep next.
package tracker

import (
	"errors"
	"log"
	"time"
)

// Deps are the peripherals driven by the controller. Indicator and Observer
// are optional.
type Deps struct {
	Positions PositionSource
	Radio     Radio
	Motion    MotionSensor
	Indicator Indicator
	Observer  Observer
}

// Controller is the tracker state machine. It is not safe for concurrent
// use; the host calls Tick from a single goroutine.
type Controller struct {
	cfg    Config
	logger *log.Logger

	positions PositionSource
	radio     Radio
	motion    MotionSensor
	indicator Indicator
	observer  Observer

	mode     Mode
	started  bool
	lastTick time.Time

	// GPS session
	hasPosition      bool
	positionFresh    bool // a fix arrived after the last delivered message
	lastPosition     Position
	lastPositionTime time.Time
	smoothedAlt      float64
	distance         float64 // meters since last delivered message
	altGain          float64 // meters since last delivered message
	maxSpeed         float64 // m/s since last delivered message
	idle             *IdleWindow
	nextProbe        time.Time

	// Radio session; a zero nextMsg means no transmit is scheduled.
	lastMsgTime time.Time
	nextMsg     time.Time
}

// New creates a controller in tracking mode. The peripherals are not touched
// until the first Tick.
func New(cfg Config, deps Deps, logger *log.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Positions == nil || deps.Radio == nil || deps.Motion == nil {
		return nil, errors.New("position source, radio and motion sensor are required")
	}
	if deps.Indicator == nil {
		deps.Indicator = nopIndicator{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	return &Controller{
		cfg:       cfg,
		logger:    logger,
		positions: deps.Positions,
		radio:     deps.Radio,
		motion:    deps.Motion,
		indicator: deps.Indicator,
		observer:  deps.Observer,
		mode:      ModeTracking,
		idle:      NewIdleWindow(cfg.IdleWindowCapacity),
	}, nil
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Tick runs one wake cycle at time now and returns how long the host should
// sleep before the next one.
func (c *Controller) Tick(now time.Time) time.Duration {
	switch {
	case !c.started:
		c.started = true
		c.toTracking(now)
	case now.Before(c.lastTick):
		c.logger.Printf("Clock went backwards by %v, resetting tracker schedules", c.lastTick.Sub(now))
		c.resetSchedules(now)
	}
	c.lastTick = now

	if c.mode == ModePowerSave {
		return c.tickPowerSave(now)
	}
	return c.tickTracking(now)
}

func (c *Controller) tickTracking(now time.Time) time.Duration {
	if !now.Before(c.nextProbe) {
		result := c.probe(now)
		if result == ProbeNoFix {
			c.nextProbe = now.Add(c.cfg.GPSRetryDelay)
		} else {
			c.nextProbe = now.Add(c.cfg.TrackingProbePeriod)
			if result != ProbeUnknown {
				c.idle.Push(result == ProbeIdle)
			}
		}
	}

	if c.messageDue(now) {
		if c.transmit(now) {
			c.nextMsg = now.Add(c.cfg.TrackingRadioPeriod)
		} else {
			c.nextMsg = now.Add(c.cfg.RadioRetryDelay)
		}
	}

	if c.idle.Idle() >= c.cfg.IdleCountThreshold {
		c.logger.Printf("Idle for %d of the last %d probes", c.idle.Idle(), c.idle.Len())
		c.toPowerSave(now)
		return c.sleepUntil(now, c.nextProbe)
	}

	wake := c.nextProbe
	if !c.nextMsg.IsZero() && c.nextMsg.Before(wake) {
		wake = c.nextMsg
	}
	return c.sleepUntil(now, wake)
}

func (c *Controller) tickPowerSave(now time.Time) time.Duration {
	motion := c.motion.TakeAndReset()
	if motion {
		c.logger.Printf("Motion sensor triggered")
	}

	if !now.Before(c.nextProbe) {
		result := c.probe(now)
		if result == ProbeNoFix {
			c.nextProbe = now.Add(c.cfg.GPSRetryDelay)
		} else {
			if err := c.positions.Sleep(); err != nil {
				c.logger.Printf("Failed to put GPS to sleep: %v", err)
			}
			c.nextProbe = now.Add(c.cfg.PowerSaveProbePeriod)
			c.nextMsg = now
			if result == ProbeMoving {
				motion = true
			}
		}
	}

	if c.messageDue(now) {
		if c.transmit(now) {
			c.nextMsg = time.Time{}
		} else {
			c.nextMsg = now.Add(c.cfg.RadioRetryDelay)
		}
	}

	if motion {
		c.toTracking(now)
	}
	// Radio retries piggy-back on the next probe wake.
	return c.sleepUntil(now, c.nextProbe)
}

func (c *Controller) toTracking(now time.Time) {
	c.logger.Printf("Entering live tracking mode")

	c.mode = ModeTracking
	c.idle.Reset()

	if err := c.motion.Disarm(); err != nil {
		c.logger.Printf("Failed to disarm motion sensor: %v", err)
	}
	if err := c.positions.WakeUp(); err != nil {
		c.logger.Printf("Failed to wake up GPS: %v", err)
	}

	c.nextProbe = now
	// Never delay a transmit that is already scheduled earlier.
	next := now.Add(c.cfg.TrackingRadioPeriod)
	if c.nextMsg.IsZero() || next.Before(c.nextMsg) {
		c.nextMsg = next
	}

	c.indicator.ShowMode(c.mode)
	c.observer.ModeChanged(c.mode, now)
}

func (c *Controller) toPowerSave(now time.Time) {
	c.logger.Printf("Entering power save mode")

	c.mode = ModePowerSave
	c.idle.Reset()

	if err := c.positions.Sleep(); err != nil {
		c.logger.Printf("Failed to put GPS to sleep: %v", err)
	}
	// Drop anything latched before arming.
	c.motion.TakeAndReset()
	if err := c.motion.Arm(); err != nil {
		c.logger.Printf("Failed to arm motion sensor: %v", err)
	}

	if c.hasPosition {
		c.nextProbe = c.lastPositionTime.Add(c.cfg.PowerSaveProbePeriod)
	} else {
		c.nextProbe = now
	}

	c.indicator.ShowMode(c.mode)
	c.observer.ModeChanged(c.mode, now)
}

// resetSchedules forgets every timestamp taken from a clock that has since
// gone backwards. Accumulators survive so no telemetry is lost.
func (c *Controller) resetSchedules(now time.Time) {
	c.hasPosition = false
	c.positionFresh = false
	c.lastPositionTime = time.Time{}
	c.lastMsgTime = time.Time{}
	c.nextMsg = time.Time{}
	c.toTracking(now)
}

func (c *Controller) messageDue(now time.Time) bool {
	return !c.nextMsg.IsZero() && !now.Before(c.nextMsg)
}

func (c *Controller) sleepUntil(now, wake time.Time) time.Duration {
	d := wake.Sub(now)
	if d < c.cfg.MinSleep {
		return c.cfg.MinSleep
	}
	return d
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Mode             Mode
	HasPosition      bool
	LastPosition     Position
	LastPositionTime time.Time
	SmoothedAlt      float64
	Distance         float64
	AltGain          float64
	MaxSpeed         float64
	IdleWindow       []bool
	IdleCount        int
	NextProbe        time.Time
	LastMessage      time.Time
	NextMessage      time.Time
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Mode:             c.mode,
		HasPosition:      c.hasPosition,
		LastPosition:     c.lastPosition,
		LastPositionTime: c.lastPositionTime,
		SmoothedAlt:      c.smoothedAlt,
		Distance:         c.distance,
		AltGain:          c.altGain,
		MaxSpeed:         c.maxSpeed,
		IdleWindow:       c.idle.Values(),
		IdleCount:        c.idle.Idle(),
		NextProbe:        c.nextProbe,
		LastMessage:      c.lastMsgTime,
		NextMessage:      c.nextMsg,
	}
}
