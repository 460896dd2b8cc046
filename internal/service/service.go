package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bike-tracker/internal/config"
	"bike-tracker/internal/gpio"
	"bike-tracker/internal/health"
	redisClient "bike-tracker/internal/redis"
	"bike-tracker/internal/tracker"
)

// Clock is the host time base. Sleep may return before d elapsed.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Indicator is the LED driver as seen by the service.
type Indicator interface {
	tracker.Indicator
	Blink(ctx context.Context, period time.Duration)
}

type Service struct {
	Config  *config.Config
	Redis   *redisClient.Client // nil when mirroring is disabled
	Logger  *log.Logger
	Health  *health.Health
	Version string

	open      func() (*Peripherals, error)
	gpsStatus statusReporter // nil when the position source has none
}

func New(cfg *config.Config, logger *log.Logger, version string) (*Service, error) {
	var redis *redisClient.Client
	if cfg.RedisURL != "" {
		var err error
		redis, err = redisClient.New(cfg.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %v", err)
		}
	}

	service := &Service{
		Config:  cfg,
		Redis:   redis,
		Logger:  logger,
		Health:  health.New(),
		Version: version,
	}
	service.open = service.openPeripherals

	service.Logger.Printf("bike-tracker v%s", version)

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx); err != nil {
			if s.Config.Radio == config.RadioRedis {
				return s.halt(ctx, nil, &initError{code: FaultRadioInit, err: fmt.Errorf("redis connection failed: %v", err)})
			}
			s.Logger.Printf("Redis unavailable, tracker state will not be mirrored: %v", err)
			s.Redis.Close()
			s.Redis = nil
		}
	}

	p, err := s.open()
	if err != nil {
		return s.halt(ctx, p, err)
	}
	defer p.Close()
	if sr, ok := p.Positions.(statusReporter); ok {
		s.gpsStatus = sr
	}

	ctrl, err := tracker.New(s.Config.Tracker, tracker.Deps{
		Positions: p.Positions,
		Radio:     p.Radio,
		Motion:    p.Motion,
		Indicator: p.Indicator,
		Observer:  s,
	}, s.Logger)
	if err != nil {
		return s.halt(ctx, p, err)
	}

	s.publishHealthState()
	s.Logger.Printf("Starting bike tracker (gps=%s, radio=%s)", s.Config.GPSSource, s.Config.Radio)

	for {
		sleep := ctrl.Tick(p.Clock.Now())
		if s.Config.Debug {
			s.Logger.Printf("Sleeping for %v in %s mode", sleep, ctrl.Mode())
		}
		if err := p.Clock.Sleep(ctx, sleep); err != nil {
			break
		}
	}

	s.Logger.Printf("Shutting down")
	return nil
}

// halt reports a failure the tracker cannot run with and blinks every LED
// until the process is signalled.
func (s *Service) halt(ctx context.Context, p *Peripherals, cause error) error {
	code := FaultInit
	var ie *initError
	if errors.As(cause, &ie) {
		code = ie.code
	}

	s.Logger.Printf("SEVERE ERROR: %v", cause)
	s.Health.MarkFailed(code, time.Now())
	s.publishHealthState()
	if s.Redis != nil {
		rctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		if err := s.Redis.AddFault(rctx, code); err != nil {
			s.Logger.Printf("Failed to raise fault %s: %v", code, err)
		}
		cancel()
	}

	if p != nil {
		defer p.Close()
	}
	if p != nil && p.Indicator != nil {
		p.Indicator.Blink(ctx, gpio.FaultBlinkPeriod)
	} else {
		<-ctx.Done()
	}

	return fmt.Errorf("tracker cannot run: %v", cause)
}
