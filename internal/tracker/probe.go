package tracker

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"bike-tracker/internal/geo"
)

// probe queries the position source and folds a valid fix into the GPS
// session: idle/moving classification, altitude smoothing and, when moving,
// the distance, elevation gain and max speed accumulators.
func (c *Controller) probe(now time.Time) ProbeResult {
	pos, err := c.positions.Position()
	if err != nil {
		c.logger.Printf("GPS probe failed: %v", err)
		pos = Position{}
	}

	if !pos.HasFix() {
		c.logger.Printf("Unsuccessful GPS probe (fix=%t, satellites=%d)", pos.FixValid, pos.Satellites)
		c.observer.Probed(ProbeNoFix, pos, now)
		return ProbeNoFix
	}

	c.logger.Printf("New GPS probe: lat=%.6f lng=%.6f alt=%.2fm sats=%d",
		pos.Lat, pos.Lng, pos.Alt, pos.Satellites)

	if !c.hasPosition {
		c.hasPosition = true
		c.positionFresh = true
		c.lastPosition = pos
		c.lastPositionTime = now
		c.smoothedAlt = pos.Alt
		c.observer.Probed(ProbeUnknown, pos, now)
		return ProbeUnknown
	}

	dt := now.Sub(c.lastPositionTime).Seconds()
	if dt <= 0 {
		c.logger.Printf("GPS probe too close to the previous one (%.3fs), ignoring", dt)
		c.observer.Probed(ProbeNoFix, pos, now)
		return ProbeNoFix
	}

	prev, cur := c.lastPosition.point(), pos.point()
	dist := geo.Distance(prev, cur, false)
	horizontalSpeed := geo.Distance(prev, cur, true) / dt

	// Altitude noise around a fixed point must never count as movement.
	isIdle := horizontalSpeed < c.cfg.IdleThresholdMPS

	smoothed := geo.Smooth(c.smoothedAlt, pos.Alt, c.cfg.AltSmootherFactor)
	gain := geo.Gain(c.smoothedAlt, smoothed)

	result := ProbeIdle
	if !isIdle {
		result = ProbeMoving
		c.distance += dist
		c.altGain += gain
		c.maxSpeed = math.Max(c.maxSpeed, dist/dt)
	}

	c.logger.Printf("\tDistance: %sm - Speed: %.2fm/s - Idle: %t",
		humanize.FormatFloat("#,###.##", dist), horizontalSpeed, isIdle)

	c.positionFresh = true
	c.lastPosition = pos
	c.lastPositionTime = now
	c.smoothedAlt = smoothed

	c.observer.Probed(result, pos, now)
	return result
}
