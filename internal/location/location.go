// Package location reads fixes from gpsd and hands them to the tracker as a
// power-managed position source.
package location

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"bike-tracker/internal/tracker"
)

const (
	// DefaultStaleAfter bounds how old the last TPV report may be and still
	// count as a fix.
	DefaultStaleAfter = 10 * time.Second

	// DialTimeout bounds the connection attempt to gpsd.
	DialTimeout = 3 * time.Second
)

// Source follows gpsd's TPV and SKY reports. gpsd powers the receiver down
// once no client watches it, so Sleep simply drops the session.
type Source struct {
	Server     string
	StaleAfter time.Duration
	Logger     *log.Logger
	Filter     *JitterFilter // optional

	now  func() time.Time
	dial func(server string) (*gpsd.Session, error)

	mu         sync.Mutex
	session    *gpsd.Session
	done       chan bool // closed watch loop signals here
	awake      bool
	fix        tracker.Position
	fixAt      time.Time
	satellites uint
	state      string // "off", "searching", "fix-established"
}

// NewSource creates a source for the given gpsd address. The session is only
// opened by Init or WakeUp.
func NewSource(server string, logger *log.Logger, filter *JitterFilter) *Source {
	return &Source{
		Server:     server,
		StaleAfter: DefaultStaleAfter,
		Logger:     logger,
		Filter:     filter,
		now:        time.Now,
		dial:       dialGpsd,
		state:      "off",
	}
}

// Init checks that gpsd is reachable and leaves the receiver running.
func (s *Source) Init() error {
	if err := s.WakeUp(); err != nil {
		return fmt.Errorf("gpsd unavailable at %s: %v", s.Server, err)
	}
	return nil
}

func dialGpsd(server string) (*gpsd.Session, error) {
	return gpsd.DialTimeout(server, DialTimeout)
}

// WakeUp opens a watching session.
func (s *Source) WakeUp() error {
	s.mu.Lock()
	awake := s.awake
	s.mu.Unlock()
	if awake {
		return nil
	}

	// Report handlers take mu, so the dial must not hold it.
	s.Logger.Printf("Connecting to gpsd on %s", s.Server)
	session, err := s.dial(s.Server)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd: %v", err)
	}
	if session == nil {
		return fmt.Errorf("failed to connect to gpsd")
	}

	session.AddFilter("TPV", func(r interface{}) {
		report, ok := r.(*gpsd.TPVReport)
		if !ok {
			s.Logger.Printf("Error: Could not cast TPV report")
			return
		}
		s.handleTPV(report)
	})
	session.AddFilter("SKY", func(r interface{}) {
		report, ok := r.(*gpsd.SKYReport)
		if !ok {
			s.Logger.Printf("Error: Could not cast SKY report")
			return
		}
		s.handleSKY(report)
	})

	s.mu.Lock()
	s.session = session
	s.done = session.Watch()
	s.awake = true
	s.state = "searching"
	s.mu.Unlock()
	return nil
}

// Sleep closes the session and forgets the last fix. It returns once the
// watch loop of the session has exited.
func (s *Source) Sleep() error {
	s.mu.Lock()
	if !s.awake {
		s.mu.Unlock()
		return nil
	}
	session, done := s.session, s.done
	s.session, s.done = nil, nil
	s.awake = false
	if session != nil {
		session.Close()
	}
	s.mu.Unlock()

	// The loop may be delivering a report that waits for mu.
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.fix = tracker.Position{}
	s.fixAt = time.Time{}
	s.satellites = 0
	s.state = "off"
	if s.Filter != nil {
		s.Filter.Reset()
	}
	s.mu.Unlock()

	s.Logger.Printf("GPS session closed")
	return nil
}

// Position returns the latest fix, or a position without fix when none is
// recent enough. A sleeping receiver is woken first.
func (s *Source) Position() (tracker.Position, error) {
	if err := s.WakeUp(); err != nil {
		return tracker.Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fixAt.IsZero() || s.now().Sub(s.fixAt) > s.StaleAfter {
		return tracker.Position{Satellites: s.satellites}, nil
	}

	pos := s.fix
	pos.Satellites = s.satellites
	return pos, nil
}

// Close releases the session.
func (s *Source) Close() {
	s.Sleep()
}

// Status returns the receiver state for the gps hash.
func (s *Source) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]string{
		"state":     s.state,
		"connected": strconv.FormatBool(s.awake),
	}
}

func (s *Source) handleTPV(report *gpsd.TPVReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 0=unknown, 1=no fix
	if report.Mode < 2 {
		s.fixAt = time.Time{}
		s.state = "searching"
		return
	}

	at := report.Time
	if at.IsZero() {
		at = s.now()
	}

	pos := tracker.Position{
		FixValid: true,
		Lat:      report.Lat,
		Lng:      report.Lon,
		Alt:      report.Alt,
	}
	if s.Filter != nil {
		pos = s.Filter.Apply(pos, at)
	}

	s.fix = pos
	s.fixAt = s.now()
	s.state = "fix-established"
}

func (s *Source) handleSKY(report *gpsd.SKYReport) {
	var used uint
	for _, sat := range report.Satellites {
		if sat.Used {
			used++
		}
	}

	s.mu.Lock()
	s.satellites = used
	s.mu.Unlock()
}
