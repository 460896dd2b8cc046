package tracker

import (
	"time"

	"bike-tracker/internal/geo"
	"bike-tracker/internal/packet"
)

// Mode is the power mode of the tracker.
type Mode int

const (
	ModeTracking Mode = iota
	ModePowerSave
)

func (m Mode) String() string {
	switch m {
	case ModeTracking:
		return "tracking"
	case ModePowerSave:
		return "power-save"
	default:
		return "unknown"
	}
}

// Position is a single answer from a PositionSource.
type Position struct {
	FixValid   bool
	Satellites uint
	Lat        float64 // degrees
	Lng        float64 // degrees
	Alt        float64 // meters above sea level
}

// HasFix reports whether the position can be used for analysis.
func (p Position) HasFix() bool {
	return p.FixValid && p.Satellites > 0
}

func (p Position) point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng, Alt: p.Alt}
}

// Ack is the optional acknowledgement returned by a delivered transmit.
type Ack struct {
	Value    uint64
	Received bool
}

// ProbeResult classifies one GPS probe.
type ProbeResult int

const (
	ProbeNoFix   ProbeResult = iota // no usable fix
	ProbeUnknown                    // first fix ever, nothing to compare against
	ProbeIdle
	ProbeMoving
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeNoFix:
		return "no-fix"
	case ProbeUnknown:
		return "unknown"
	case ProbeIdle:
		return "idle"
	case ProbeMoving:
		return "moving"
	default:
		return "invalid"
	}
}

// PositionSource supplies best-effort GPS fixes. WakeUp is implied by
// Position when the receiver sleeps; Sleep and WakeUp are idempotent.
type PositionSource interface {
	Position() (Position, error)
	Sleep() error
	WakeUp() error
}

// MotionSensor latches motion interrupts while armed. TakeAndReset returns
// the latched flag and clears it atomically.
type MotionSensor interface {
	Arm() error
	Disarm() error
	TakeAndReset() bool
}

// Radio transmits a payload of at most packet.MaxPayload bytes. A nil error
// means the message was delivered.
type Radio interface {
	Send(payload []byte) (Ack, error)
	Sleep() error
	WakeUp() error
}

// Indicator shows the current mode to whoever looks at the device.
type Indicator interface {
	ShowMode(Mode)
}

// Observer receives controller events, for diagnostics.
type Observer interface {
	ModeChanged(mode Mode, at time.Time)
	Probed(result ProbeResult, pos Position, at time.Time)
	Transmitted(msg packet.LocationMessage, ack Ack, err error, at time.Time)
}

type nopIndicator struct{}

func (nopIndicator) ShowMode(Mode) {}

type nopObserver struct{}

func (nopObserver) ModeChanged(Mode, time.Time)                               {}
func (nopObserver) Probed(ProbeResult, Position, time.Time)                   {}
func (nopObserver) Transmitted(packet.LocationMessage, Ack, error, time.Time) {}
