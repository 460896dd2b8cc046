package tracker

import (
	"errors"
	"io"
	"log"
	"time"

	"bike-tracker/internal/packet"
)

var errSend = errors.New("no network")

// fakePositions hands out queued positions, then "no fix" once drained.
type fakePositions struct {
	err    error
	queue  []Position
	sleeps int
	wakes  int
	asleep bool
}

func (f *fakePositions) push(p ...Position) { f.queue = append(f.queue, p...) }

func (f *fakePositions) Position() (Position, error) {
	f.asleep = false
	if f.err != nil {
		return Position{}, f.err
	}
	if len(f.queue) == 0 {
		return Position{}, nil
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, nil
}

func (f *fakePositions) Sleep() error  { f.sleeps++; f.asleep = true; return nil }
func (f *fakePositions) WakeUp() error { f.wakes++; f.asleep = false; return nil }

type fakeRadio struct {
	fail     bool
	ack      Ack
	payloads [][]byte
	asleep   bool
}

func (f *fakeRadio) Send(payload []byte) (Ack, error) {
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	if f.fail {
		return Ack{}, errSend
	}
	return f.ack, nil
}

func (f *fakeRadio) Sleep() error  { f.asleep = true; return nil }
func (f *fakeRadio) WakeUp() error { f.asleep = false; return nil }

func (f *fakeRadio) last() packet.LocationMessage {
	if len(f.payloads) == 0 {
		return packet.LocationMessage{}
	}
	m, _ := packet.Decode(f.payloads[len(f.payloads)-1])
	return m
}

type fakeMotion struct {
	armed    bool
	detected bool
}

func (f *fakeMotion) fire() {
	if f.armed {
		f.detected = true
	}
}

func (f *fakeMotion) Arm() error    { f.armed = true; return nil }
func (f *fakeMotion) Disarm() error { f.armed = false; return nil }
func (f *fakeMotion) TakeAndReset() bool {
	d := f.detected
	f.detected = false
	return d
}

type recordingObserver struct {
	modes   []Mode
	results []ProbeResult
	sends   []error
}

func (r *recordingObserver) ModeChanged(m Mode, _ time.Time) { r.modes = append(r.modes, m) }
func (r *recordingObserver) Probed(res ProbeResult, _ Position, _ time.Time) {
	r.results = append(r.results, res)
}
func (r *recordingObserver) Transmitted(_ packet.LocationMessage, _ Ack, err error, _ time.Time) {
	r.sends = append(r.sends, err)
}

type fixture struct {
	ctrl      *Controller
	positions *fakePositions
	radio     *fakeRadio
	motion    *fakeMotion
	observer  *recordingObserver
	t0        time.Time
}

func newFixture() *fixture {
	f := &fixture{
		positions: &fakePositions{},
		radio:     &fakeRadio{},
		motion:    &fakeMotion{},
		observer:  &recordingObserver{},
		t0:        time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	ctrl, err := New(DefaultConfig(), Deps{
		Positions: f.positions,
		Radio:     f.radio,
		Motion:    f.motion,
		Observer:  f.observer,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		panic(err)
	}
	f.ctrl = ctrl
	return f
}

// at returns the time offset by secs from the fixture start.
func (f *fixture) at(secs float64) time.Time {
	return f.t0.Add(time.Duration(secs * float64(time.Second)))
}

func (f *fixture) tick(secs float64) time.Duration {
	return f.ctrl.Tick(f.at(secs))
}

func fix(lat, lng, alt float64) Position {
	return Position{FixValid: true, Satellites: 7, Lat: lat, Lng: lng, Alt: alt}
}

// home is where the bike is parked in most scenarios.
var home = fix(50.6326, 5.5797, 120)

// moved returns home shifted north by n thousandths of a degree (~111 m each).
func moved(n int) Position {
	p := home
	p.Lat += float64(n) * 0.001
	return p
}
