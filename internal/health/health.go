package health

import (
	"fmt"
	"time"
)

// Constants for health states
const (
	// MaxGPSFailures is about a minute of fix retries in a row.
	MaxGPSFailures = 12
	// MaxRadioFailures is a few minutes of transmit retries in a row.
	MaxRadioFailures = 3

	StateNormal           = "normal"
	StateDegraded         = "degraded"
	StatePermanentFailure = "permanent-failure"
)

// Health tracks consecutive peripheral failures of the tracker.
type Health struct {
	GPSFailures     int
	RadioFailures   int
	LastFailureTime time.Time
	State           string
	Reason          string
}

// New creates a new Health instance
func New() *Health {
	return &Health{
		State: StateNormal,
	}
}

// RecordProbe accounts one GPS probe and reports whether the state changed.
func (h *Health) RecordProbe(ok bool, at time.Time) bool {
	if ok {
		h.GPSFailures = 0
	} else {
		h.GPSFailures++
		h.LastFailureTime = at
	}
	return h.update()
}

// RecordTransmit accounts one transmit attempt and reports whether the state
// changed.
func (h *Health) RecordTransmit(ok bool, at time.Time) bool {
	if ok {
		h.RadioFailures = 0
	} else {
		h.RadioFailures++
		h.LastFailureTime = at
	}
	return h.update()
}

// MarkFailed records a failure the tracker cannot recover from.
func (h *Health) MarkFailed(reason string, at time.Time) {
	h.State = StatePermanentFailure
	h.Reason = reason
	h.LastFailureTime = at
}

// IsTerminal returns true if the health is in a terminal state
func (h *Health) IsTerminal() bool {
	return h.State == StatePermanentFailure
}

func (h *Health) update() bool {
	if h.IsTerminal() {
		return false
	}

	state, reason := StateNormal, ""
	switch {
	case h.GPSFailures >= MaxGPSFailures:
		state, reason = StateDegraded, "gps-no-fix"
	case h.RadioFailures >= MaxRadioFailures:
		state, reason = StateDegraded, "radio-send"
	}

	changed := state != h.State || reason != h.Reason
	h.State, h.Reason = state, reason
	return changed
}

// String returns a string representation of the health
func (h *Health) String() string {
	return fmt.Sprintf("Health{State: %s, Reason: %s, GPSFailures: %d, RadioFailures: %d}",
		h.State, h.Reason, h.GPSFailures, h.RadioFailures)
}
