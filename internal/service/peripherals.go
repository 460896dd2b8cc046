package service

import (
	"log"

	"bike-tracker/internal/clock"
	"bike-tracker/internal/config"
	"bike-tracker/internal/gpio"
	"bike-tracker/internal/location"
	"bike-tracker/internal/mm"
	"bike-tracker/internal/sigfox"
	"bike-tracker/internal/tracker"
)

// Fault codes raised in Redis when the tracker cannot start.
const (
	FaultInit      = "init"
	FaultGPIOInit  = "gpio-init"
	FaultGPSInit   = "gps-init"
	FaultRadioInit = "radio-init"
)

type initError struct {
	code string
	err  error
}

func (e *initError) Error() string {
	return e.code + ": " + e.err.Error()
}

func (e *initError) Unwrap() error {
	return e.err
}

// Peripherals is the hardware the tracker drives.
type Peripherals struct {
	Positions tracker.PositionSource
	Radio     tracker.Radio
	Motion    tracker.MotionSensor
	Indicator Indicator
	Clock     Clock

	closers []func()
}

func (p *Peripherals) onClose(fn func()) {
	p.closers = append(p.closers, fn)
}

// Close releases the peripherals in reverse order of opening.
func (p *Peripherals) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

// openPeripherals brings up every device named by the config. On error the
// returned Peripherals holds whatever was opened, the indicator included.
func (s *Service) openPeripherals() (*Peripherals, error) {
	cfg := s.Config
	driverLog := s.driverLogger()
	p := &Peripherals{}

	ind, err := gpio.NewIndicator(cfg.GPIOChip, cfg.BlueLine, cfg.GreenLine, driverLog)
	if err != nil {
		return p, &initError{code: FaultGPIOInit, err: err}
	}
	p.Indicator = ind
	p.onClose(func() { ind.Close() })
	if err := ind.LampTest(); err != nil {
		s.Logger.Printf("LED lamp test failed: %v", err)
	}

	motion := gpio.NewMotionSensor(cfg.GPIOChip, cfg.MotionLine, driverLog)
	if err := motion.Check(); err != nil {
		return p, &initError{code: FaultGPIOInit, err: err}
	}
	p.Motion = motion
	p.onClose(func() { motion.Close() })
	p.Clock = clock.New(motion.Wake())

	switch cfg.GPSSource {
	case config.GPSSourceModem:
		client, err := mm.NewClient(driverLog)
		if err != nil {
			return p, &initError{code: FaultGPSInit, err: err}
		}
		src := mm.NewSource(client, s.Logger)
		p.onClose(src.Close)
		if err := src.Init(); err != nil {
			return p, &initError{code: FaultGPSInit, err: err}
		}
		p.Positions = src
	default:
		var filter *location.JitterFilter
		if cfg.GPSFilter {
			filter = location.NewJitterFilter(nil)
		}
		src := location.NewSource(cfg.GpsdServer, s.Logger, filter)
		p.onClose(src.Close)
		if err := src.Init(); err != nil {
			return p, &initError{code: FaultGPSInit, err: err}
		}
		p.Positions = src
	}

	switch cfg.Radio {
	case config.RadioRedis:
		p.Radio = s.Redis.Uplink(cfg.UplinkChannel)
	case config.RadioLog:
		p.Radio = &logRadio{logger: s.Logger}
	default:
		modem, err := sigfox.Open(cfg.RadioPort, cfg.Serial, cfg.RadioDownlink, driverLog)
		if err != nil {
			return p, &initError{code: FaultRadioInit, err: err}
		}
		p.onClose(func() { modem.Close() })
		if err := modem.Init(); err != nil {
			return p, &initError{code: FaultRadioInit, err: err}
		}
		p.Radio = modem
	}

	return p, nil
}

// driverLogger returns the logger drivers trace through; silent unless
// debugging.
func (s *Service) driverLogger() func(string, ...interface{}) {
	if s.Config.Debug {
		return s.Logger.Printf
	}
	return func(string, ...interface{}) {}
}

// logRadio only logs payloads, for running without any uplink.
type logRadio struct {
	logger *log.Logger
}

func (r *logRadio) Send(payload []byte) (tracker.Ack, error) {
	r.logger.Printf("Uplink %x", payload)
	return tracker.Ack{}, nil
}

func (r *logRadio) Sleep() error  { return nil }
func (r *logRadio) WakeUp() error { return nil }
