package tracker

import (
	"time"

	"github.com/dustin/go-humanize"

	"bike-tracker/internal/packet"
)

// message builds the uplink record from the accumulators. Latitude and
// longitude are zero when no fix arrived since the last delivered message,
// which tells the backend there is no location update.
func (c *Controller) message() packet.LocationMessage {
	t := packet.Telemetry{
		Alt:      c.smoothedAlt,
		Distance: c.distance,
		AltGain:  c.altGain,
		MaxSpeed: c.maxSpeed,
	}
	if c.positionFresh {
		t.Lat = c.lastPosition.Lat
		t.Lng = c.lastPosition.Lng
	}
	return packet.Quantize(t)
}

// transmit sends the current telemetry and reports whether it was delivered.
// Accumulators are only cleared on delivery, so a failed send loses nothing.
func (c *Controller) transmit(now time.Time) bool {
	msg := c.message()
	payload := msg.Encode()

	c.logger.Printf("Sending %d byte(s) location message: %s", len(payload), msg)

	if err := c.radio.WakeUp(); err != nil {
		c.logger.Printf("Failed to wake up radio: %v", err)
	}
	ack, err := c.radio.Send(payload[:])
	if serr := c.radio.Sleep(); serr != nil {
		c.logger.Printf("Failed to put radio to sleep: %v", serr)
	}

	c.observer.Transmitted(msg, ack, err, now)

	if err != nil {
		c.logger.Printf("Radio transmission failed: %v", err)
		return false
	}

	if ack.Received {
		c.logger.Printf("Location message delivered, ack=%#x", ack.Value)
	} else {
		c.logger.Printf("Location message delivered")
	}
	if !c.lastMsgTime.IsZero() {
		c.logger.Printf("\tCovers %s travelled over %v",
			humanize.SIWithDigits(c.distance, 1, "m"), now.Sub(c.lastMsgTime).Round(time.Second))
	}

	c.distance = 0
	c.altGain = 0
	c.maxSpeed = 0
	c.positionFresh = false
	c.lastMsgTime = now
	return true
}
