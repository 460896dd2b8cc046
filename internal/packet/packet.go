// Package packet implements the fixed-size uplink record sent by the tracker.
//
// Layout (little-endian, 12 bytes, the radio payload ceiling):
//
//	offset size field
//	0      4    latitude, float32 degrees (0 when no new fix since last delivery)
//	4      4    longitude, float32 degrees (0 when no new fix since last delivery)
//	8      1    altitude, meters / 8 (range 0..2040)
//	9      1    distance since last delivery, meters / 16 (range 0..4080)
//	10     1    positive elevation gain since last delivery, meters / 2 (range 0..510)
//	11     1    maximum speed since last delivery, m/s / 16
package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	// Size is the encoded length of a LocationMessage.
	Size = 12

	// MaxPayload is the largest payload the radio link accepts.
	MaxPayload = 12
)

// Quantization steps of the scaled one-byte fields.
const (
	AltResolution      = 8.0  // meters
	DistResolution     = 16.0 // meters
	AltGainResolution  = 2.0  // meters
	MaxSpeedResolution = 16.0 // m/s
)

// ErrSize is returned by Decode for payloads that are not Size bytes long.
var ErrSize = errors.New("invalid location message size")

// Telemetry holds the physical, unscaled values carried by a LocationMessage.
type Telemetry struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Alt      float64 `json:"alt"`       // meters
	Distance float64 `json:"dist"`      // meters
	AltGain  float64 `json:"alt_gain"`  // meters
	MaxSpeed float64 `json:"max_speed"` // m/s
}

// LocationMessage is the quantized wire record.
type LocationMessage struct {
	Lat      float32
	Lng      float32
	Alt      uint8
	Dist     uint8
	AltGain  uint8
	MaxSpeed uint8
}

// quantize scales v down by res, rounds to the nearest step and clamps to a byte.
func quantize(v, res float64) uint8 {
	q := math.Round(v / res)
	switch {
	case math.IsNaN(q) || q <= 0:
		return 0
	case q >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(q)
}

// Quantize compresses t into a LocationMessage.
func Quantize(t Telemetry) LocationMessage {
	return LocationMessage{
		Lat:      float32(t.Lat),
		Lng:      float32(t.Lng),
		Alt:      quantize(t.Alt, AltResolution),
		Dist:     quantize(t.Distance, DistResolution),
		AltGain:  quantize(t.AltGain, AltGainResolution),
		MaxSpeed: quantize(t.MaxSpeed, MaxSpeedResolution),
	}
}

// Telemetry expands the scaled fields back to physical units.
func (m LocationMessage) Telemetry() Telemetry {
	return Telemetry{
		Lat:      float64(m.Lat),
		Lng:      float64(m.Lng),
		Alt:      float64(m.Alt) * AltResolution,
		Distance: float64(m.Dist) * DistResolution,
		AltGain:  float64(m.AltGain) * AltGainResolution,
		MaxSpeed: float64(m.MaxSpeed) * MaxSpeedResolution,
	}
}

// HasLocation reports whether the message carries a fresh position.
func (m LocationMessage) HasLocation() bool {
	return m.Lat != 0 || m.Lng != 0
}

// Encode returns the wire representation of m.
func (m LocationMessage) Encode() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(m.Lat))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(m.Lng))
	b[8] = m.Alt
	b[9] = m.Dist
	b[10] = m.AltGain
	b[11] = m.MaxSpeed
	return b
}

// Decode parses a wire record.
func Decode(b []byte) (LocationMessage, error) {
	if len(b) != Size {
		return LocationMessage{}, errors.Wrapf(ErrSize, "got %d bytes, want %d", len(b), Size)
	}
	return LocationMessage{
		Lat:      math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Lng:      math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Alt:      b[8],
		Dist:     b[9],
		AltGain:  b[10],
		MaxSpeed: b[11],
	}, nil
}

func (m LocationMessage) String() string {
	return fmt.Sprintf("lat=%.6f lng=%.6f alt=%d dist=%d alt_gain=%d max_speed=%d",
		m.Lat, m.Lng, m.Alt, m.Dist, m.AltGain, m.MaxSpeed)
}
