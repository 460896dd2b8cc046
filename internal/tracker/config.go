package tracker

import (
	"fmt"
	"time"
)

// Config holds the tunable scheduling and classification parameters.
type Config struct {
	IdleThresholdMPS     float64       // horizontal speed below which a probe counts as idle
	IdleWindowCapacity   int           // number of probe classifications kept
	IdleCountThreshold   int           // idle probes within the window that trigger power save
	TrackingProbePeriod  time.Duration // GPS sampling period while tracking
	TrackingRadioPeriod  time.Duration // transmit period while tracking
	PowerSaveProbePeriod time.Duration // GPS sampling period while power-saving
	GPSRetryDelay        time.Duration // retry pacing after a probe without fix
	RadioRetryDelay      time.Duration // retry pacing after a failed transmit
	AltSmootherFactor    float64       // exponential altitude smoothing weight
	MinSleep             time.Duration // floor on every computed sleep
}

// DefaultConfig returns the field-tested defaults.
func DefaultConfig() Config {
	return Config{
		IdleThresholdMPS:     4.0 / 3.6, // 4 km/h
		IdleWindowCapacity:   12,
		IdleCountThreshold:   9,
		TrackingProbePeriod:  20 * time.Second,
		TrackingRadioPeriod:  180 * time.Second,
		PowerSaveProbePeriod: time.Hour,
		GPSRetryDelay:        5 * time.Second,
		RadioRetryDelay:      60 * time.Second,
		AltSmootherFactor:    0.2,
		MinSleep:             500 * time.Millisecond,
	}
}

// Validate reports the first inconsistent parameter.
func (c Config) Validate() error {
	switch {
	case c.IdleThresholdMPS <= 0:
		return fmt.Errorf("idle threshold must be positive, got %v", c.IdleThresholdMPS)
	case c.IdleWindowCapacity <= 0:
		return fmt.Errorf("idle window capacity must be positive, got %d", c.IdleWindowCapacity)
	case c.IdleCountThreshold <= 0 || c.IdleCountThreshold > c.IdleWindowCapacity:
		return fmt.Errorf("idle count threshold must be in [1, %d], got %d", c.IdleWindowCapacity, c.IdleCountThreshold)
	case c.TrackingProbePeriod <= 0, c.TrackingRadioPeriod <= 0, c.PowerSaveProbePeriod <= 0:
		return fmt.Errorf("probe and radio periods must be positive")
	case c.GPSRetryDelay <= 0, c.RadioRetryDelay <= 0:
		return fmt.Errorf("retry delays must be positive")
	case c.AltSmootherFactor < 0 || c.AltSmootherFactor > 1:
		return fmt.Errorf("altitude smoother factor must be in [0, 1], got %v", c.AltSmootherFactor)
	case c.MinSleep <= 0:
		return fmt.Errorf("minimum sleep must be positive, got %v", c.MinSleep)
	}
	return nil
}
