package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"bike-tracker/internal/tracker"
)

const (
	TrackerKey   = "tracker"
	GPSKey       = "gps"
	TelemetryKey = "tracker:telemetry"
	FaultKey     = "tracker:fault"

	// DefaultUplinkChannel carries hex encoded location messages.
	DefaultUplinkChannel = "tracker:uplink"

	publishTimeout = 2 * time.Second
)

// ErrNoReceiver is returned when an uplink was published but nobody listened.
var ErrNoReceiver = errors.New("no receiver subscribed to uplink channel")

// Client wraps the Redis client with the tracker's keys
type Client struct {
	client *redis.Client
	logger *log.Logger
}

// New creates a new Redis client
func New(redisURL string, logger *log.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %v", err)
	}

	return &Client{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

// Ping checks if the Redis server is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PublishTrackerState sets one field of the tracker hash and announces it.
func (c *Client) PublishTrackerState(ctx context.Context, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, TrackerKey, field, value)
	pipe.Publish(ctx, TrackerKey, field)
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Printf("Unable to set tracker.%s in redis: %v", field, err)
		return fmt.Errorf("cannot write to redis: %v", err)
	}
	return nil
}

// PublishLocation stores the last probed position in the gps hash.
func (c *Client) PublishLocation(ctx context.Context, data map[string]interface{}) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, GPSKey, data)
	pipe.Publish(ctx, GPSKey, "timestamp")
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Printf("Unable to set location in redis: %v", err)
		return fmt.Errorf("cannot write location to redis: %v", err)
	}
	return nil
}

// PublishTelemetry stores the last transmitted message and its outcome.
func (c *Client) PublishTelemetry(ctx context.Context, data map[string]interface{}) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, TelemetryKey, data)
	pipe.Publish(ctx, TelemetryKey, "updated")
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Printf("Unable to set telemetry in redis: %v", err)
		return fmt.Errorf("cannot write telemetry to redis: %v", err)
	}
	return nil
}

// AddFault raises a fault code.
func (c *Client) AddFault(ctx context.Context, code string) error {
	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, FaultKey, code)
	pipe.Publish(ctx, FaultKey, code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot raise fault %s: %v", code, err)
	}
	return nil
}

// RemoveFault clears a fault code.
func (c *Client) RemoveFault(ctx context.Context, code string) error {
	pipe := c.client.Pipeline()
	pipe.SRem(ctx, FaultKey, code)
	pipe.Publish(ctx, FaultKey, code)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot clear fault %s: %v", code, err)
	}
	return nil
}

// Uplinks calls fn with every payload published on channel until ctx is
// done. Malformed payloads are logged and skipped.
func (c *Client) Uplinks(ctx context.Context, channel string, fn func(payload []byte)) error {
	sub := c.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("cannot subscribe to %s: %v", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", channel)
			}
			payload, err := hex.DecodeString(msg.Payload)
			if err != nil {
				c.logger.Printf("Skipping malformed uplink %q: %v", msg.Payload, err)
				continue
			}
			fn(payload)
		}
	}
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.client.Close()
}

// Uplink is a tracker.Radio that publishes hex encoded payloads on a Redis
// channel, for bench setups without a Sigfox module.
type Uplink struct {
	client  *Client
	channel string
}

// Uplink returns a radio publishing on channel.
func (c *Client) Uplink(channel string) *Uplink {
	return &Uplink{client: c, channel: channel}
}

// Send publishes payload. It only counts as delivered when a subscriber
// received it; the ack carries the number of receivers.
func (u *Uplink) Send(payload []byte) (tracker.Ack, error) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	n, err := u.client.client.Publish(ctx, u.channel, hex.EncodeToString(payload)).Result()
	if err != nil {
		return tracker.Ack{}, fmt.Errorf("cannot publish uplink: %v", err)
	}
	if n == 0 {
		return tracker.Ack{}, ErrNoReceiver
	}
	return tracker.Ack{Value: uint64(n), Received: true}, nil
}

// WakeUp checks the server is reachable.
func (u *Uplink) WakeUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return u.client.Ping(ctx)
}

// Sleep is a no-op.
func (u *Uplink) Sleep() error {
	return nil
}
