package service

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	"bike-tracker/internal/packet"
	"bike-tracker/internal/tracker"
)

const redisTimeout = 2 * time.Second

// statusReporter is implemented by position sources that can describe their
// receiver beyond the last fix.
type statusReporter interface {
	Status() map[string]string
}

// ModeChanged mirrors the mode into the tracker hash.
func (s *Service) ModeChanged(mode tracker.Mode, at time.Time) {
	s.publishTrackerState("mode", mode.String())
}

// Probed feeds GPS health and mirrors the probe into the gps hash.
func (s *Service) Probed(result tracker.ProbeResult, pos tracker.Position, at time.Time) {
	prev := s.Health.Reason
	if s.Health.RecordProbe(result != tracker.ProbeNoFix, at) {
		s.healthChanged(prev)
	}
	if s.Redis == nil {
		return
	}

	data := map[string]interface{}{
		"fix":        result.String(),
		"satellites": strconv.FormatUint(uint64(pos.Satellites), 10),
		"timestamp":  at.UTC().Format(time.RFC3339),
	}
	if pos.HasFix() {
		data["latitude"] = strconv.FormatFloat(pos.Lat, 'f', 6, 64)
		data["longitude"] = strconv.FormatFloat(pos.Lng, 'f', 6, 64)
		data["altitude"] = strconv.FormatFloat(pos.Alt, 'f', 1, 64)
	}
	if s.gpsStatus != nil {
		for k, v := range s.gpsStatus.Status() {
			data[k] = v
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	s.Redis.PublishLocation(ctx, data)
}

// Transmitted feeds radio health and mirrors the message into the
// telemetry hash.
func (s *Service) Transmitted(msg packet.LocationMessage, ack tracker.Ack, err error, at time.Time) {
	prev := s.Health.Reason
	if s.Health.RecordTransmit(err == nil, at) {
		s.healthChanged(prev)
	}
	if s.Redis == nil {
		return
	}

	payload := msg.Encode()
	t := msg.Telemetry()
	data := map[string]interface{}{
		"payload":   hex.EncodeToString(payload[:]),
		"delivered": strconv.FormatBool(err == nil),
		"timestamp": at.UTC().Format(time.RFC3339),
		"distance":  strconv.FormatFloat(t.Distance, 'f', 0, 64),
		"alt-gain":  strconv.FormatFloat(t.AltGain, 'f', 0, 64),
		"max-speed": strconv.FormatFloat(t.MaxSpeed, 'f', 0, 64),
		"error":     "",
		"ack":       "",
	}
	if err != nil {
		data["error"] = err.Error()
	}
	if ack.Received {
		data["ack"] = strconv.FormatUint(ack.Value, 10)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	s.Redis.PublishTelemetry(ctx, data)
}

// healthChanged publishes the new health and swaps the degradation fault
// raised for the previous reason.
func (s *Service) healthChanged(prev string) {
	s.Logger.Printf("Health changed: %s", s.Health)
	s.publishHealthState()
	if s.Redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if prev != "" {
		if err := s.Redis.RemoveFault(ctx, prev); err != nil {
			s.Logger.Printf("Failed to clear fault %s: %v", prev, err)
		}
	}
	if s.Health.Reason != "" {
		if err := s.Redis.AddFault(ctx, s.Health.Reason); err != nil {
			s.Logger.Printf("Failed to raise fault %s: %v", s.Health.Reason, err)
		}
	}
}

func (s *Service) publishHealthState() {
	s.publishTrackerState("health", s.Health.State)
	s.publishTrackerState("health-reason", s.Health.Reason)
}

func (s *Service) publishTrackerState(field, value string) {
	if s.Redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	s.Redis.PublishTrackerState(ctx, field, value)
}
