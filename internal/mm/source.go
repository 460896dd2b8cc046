package mm

import (
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"

	"bike-tracker/internal/tracker"
)

// Source reads fixes from the GNSS engine of a cellular modem. It is used
// on boards where gpsd does not own the receiver.
type Source struct {
	Logger *log.Logger

	client *Client
	mu     sync.Mutex
	gnss   *GNSS
	awake  bool
}

// NewSource wraps a ModemManager client. The modem is located by Init.
func NewSource(client *Client, logger *log.Logger) *Source {
	return &Source{client: client, Logger: logger}
}

// Init finds the modem, configures its engine and starts it.
func (s *Source) Init() error {
	path, err := s.client.FindModem()
	if err != nil {
		return fmt.Errorf("failed to find modem: %v", err)
	}
	s.Logger.Printf("Using modem %s for GNSS", path)

	// ModemManager must not fight over the engine.
	if err := s.client.SetupLocation(path, MMModemLocationSource3gppLacCi|MMModemLocationSourceGpsUnmanaged, false); err != nil {
		s.Logger.Printf("Warning: failed to setup location sources: %v", err)
	}

	return s.attach(NewGNSS(s.client, path, s.client.logger))
}

func (s *Source) attach(gnss *GNSS) error {
	s.mu.Lock()
	s.gnss = gnss
	s.mu.Unlock()

	if err := gnss.Configure(); err != nil {
		return fmt.Errorf("failed to configure GNSS: %v", err)
	}
	return s.WakeUp()
}

// WakeUp starts the engine.
func (s *Source) WakeUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awake {
		return nil
	}
	if s.gnss == nil {
		return fmt.Errorf("GNSS not initialized")
	}

	running, err := s.gnss.Running()
	if err != nil {
		s.Logger.Printf("Warning: Failed to check GPS status: %v", err)
	}
	if !running {
		if err := s.gnss.Start(GPSModeStandalone); err != nil {
			return fmt.Errorf("failed to start GNSS: %v", err)
		}
	}
	s.awake = true
	return nil
}

// Sleep stops the engine.
func (s *Source) Sleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.awake || s.gnss == nil {
		return nil
	}
	if err := s.gnss.Stop(); err != nil {
		return fmt.Errorf("failed to stop GNSS: %v", err)
	}
	s.awake = false
	return nil
}

// Position queries the engine, starting it first when stopped.
func (s *Source) Position() (tracker.Position, error) {
	if err := s.WakeUp(); err != nil {
		return tracker.Position{}, err
	}

	s.mu.Lock()
	gnss := s.gnss
	s.mu.Unlock()

	info, err := gnss.Info()
	if err != nil {
		return tracker.Position{}, err
	}

	return tracker.Position{
		FixValid:   info.Valid,
		Satellites: info.Satellites,
		Lat:        info.Latitude,
		Lng:        info.Longitude,
		Alt:        info.Altitude,
	}, nil
}

// Close stops the engine and releases the bus.
func (s *Source) Close() {
	s.Sleep()
	if s.client != nil {
		s.client.Close()
	}
}

// Status returns the engine state and the modem in use for the gps hash.
func (s *Source) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modem dbus.ObjectPath
	if s.gnss != nil {
		modem = s.gnss.path
	}
	state := "off"
	if s.awake {
		state = "running"
	}
	return map[string]string{
		"state": state,
		"modem": string(modem),
	}
}
