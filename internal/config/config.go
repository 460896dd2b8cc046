package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bike-tracker/internal/sigfox"
	"bike-tracker/internal/tracker"
)

const (
	GPSSourceGpsd  = "gpsd"
	GPSSourceModem = "modem"

	RadioSigfox = "sigfox"
	RadioRedis  = "redis"
	RadioLog    = "log"
)

type Config struct {
	RedisURL      string
	UplinkChannel string
	ConfigFile    string

	GPSSource  string
	GpsdServer string
	GPSFilter  bool

	Radio         string
	RadioPort     string
	RadioDownlink bool
	Serial        sigfox.PortOptions

	GPIOChip   string
	MotionLine int
	BlueLine   int
	GreenLine  int

	Debug   bool
	Tracker tracker.Config
}

// New registers the flags on the default flag set.
func New() *Config {
	return NewFlagSet(flag.CommandLine)
}

// NewFlagSet registers the flags on fs.
func NewFlagSet(fs *flag.FlagSet) *Config {
	cfg := &Config{Tracker: tracker.DefaultConfig()}

	fs.StringVar(&cfg.RedisURL, "redis-url", "redis://127.0.0.1:6379", "Redis URL for state mirroring, empty to disable")
	fs.StringVar(&cfg.UplinkChannel, "uplink-channel", "tracker:uplink", "Redis channel used by the redis radio")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML tuning file")
	fs.StringVar(&cfg.GPSSource, "gps", GPSSourceGpsd, "Position source: gpsd or modem")
	fs.StringVar(&cfg.GpsdServer, "gpsd-server", "localhost:2947", "GPSD server address")
	fs.BoolVar(&cfg.GPSFilter, "gps-filter", false, "Smooth gpsd fixes with a Kalman filter")
	fs.StringVar(&cfg.Radio, "radio", RadioSigfox, "Radio: sigfox, redis or log")
	fs.StringVar(&cfg.RadioPort, "radio-port", "/dev/ttyS1", "Serial port of the Sigfox module")
	fs.IntVar(&cfg.Serial.BaudRate, "radio-baud", 9600, "Baud rate of the Sigfox module")
	fs.BoolVar(&cfg.RadioDownlink, "radio-downlink", false, "Request a downlink with every uplink")
	fs.StringVar(&cfg.GPIOChip, "gpio-chip", "gpiochip0", "GPIO chip carrying the motion and LED lines")
	fs.IntVar(&cfg.MotionLine, "motion-line", 17, "GPIO line of the accelerometer interrupt")
	fs.IntVar(&cfg.BlueLine, "led-blue-line", 22, "GPIO line of the blue LED")
	fs.IntVar(&cfg.GreenLine, "led-green-line", 27, "GPIO line of the green LED")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	return cfg
}

// Load applies the tuning file, if any, and validates the result.
func (c *Config) Load() error {
	if c.ConfigFile != "" {
		data, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("cannot read config file: %v", err)
		}
		if err := c.apply(data); err != nil {
			return fmt.Errorf("invalid config file %s: %v", c.ConfigFile, err)
		}
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	switch c.GPSSource {
	case GPSSourceGpsd, GPSSourceModem:
	default:
		return fmt.Errorf("unknown position source %q", c.GPSSource)
	}
	switch c.Radio {
	case RadioSigfox, RadioLog:
	case RadioRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("the redis radio needs -redis-url")
		}
	default:
		return fmt.Errorf("unknown radio %q", c.Radio)
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return err
	}
	return c.Tracker.Validate()
}

// file is the layout of the tuning file. Absent keys keep their defaults.
type file struct {
	Tracker struct {
		IdleThresholdKPH     *float64  `yaml:"idleThresholdKph"`
		IdleWindow           *int      `yaml:"idleWindow"`
		IdleCount            *int      `yaml:"idleCount"`
		TrackingProbePeriod  *Duration `yaml:"trackingProbePeriod"`
		TrackingRadioPeriod  *Duration `yaml:"trackingRadioPeriod"`
		PowerSaveProbePeriod *Duration `yaml:"powerSaveProbePeriod"`
		GPSRetryDelay        *Duration `yaml:"gpsRetryDelay"`
		RadioRetryDelay      *Duration `yaml:"radioRetryDelay"`
		AltSmoothing         *float64  `yaml:"altSmoothing"`
		MinSleep             *Duration `yaml:"minSleep"`
	} `yaml:"tracker"`
	Serial *sigfox.PortOptions `yaml:"serial"`
}

func (c *Config) apply(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	t := &c.Tracker
	if v := f.Tracker.IdleThresholdKPH; v != nil {
		t.IdleThresholdMPS = *v / 3.6
	}
	if v := f.Tracker.IdleWindow; v != nil {
		t.IdleWindowCapacity = *v
	}
	if v := f.Tracker.IdleCount; v != nil {
		t.IdleCountThreshold = *v
	}
	setDuration(&t.TrackingProbePeriod, f.Tracker.TrackingProbePeriod)
	setDuration(&t.TrackingRadioPeriod, f.Tracker.TrackingRadioPeriod)
	setDuration(&t.PowerSaveProbePeriod, f.Tracker.PowerSaveProbePeriod)
	setDuration(&t.GPSRetryDelay, f.Tracker.GPSRetryDelay)
	setDuration(&t.RadioRetryDelay, f.Tracker.RadioRetryDelay)
	setDuration(&t.MinSleep, f.Tracker.MinSleep)
	if v := f.Tracker.AltSmoothing; v != nil {
		t.AltSmootherFactor = *v
	}

	if f.Serial != nil {
		baud := c.Serial.BaudRate
		c.Serial = *f.Serial
		if c.Serial.BaudRate == 0 {
			c.Serial.BaudRate = baud
		}
	}
	return nil
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

// Duration reads "20s", "3m" or "1h" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %s", err)
	}
	if duration < 0 {
		return fmt.Errorf("config.Duration: must not be negative: %s", duration)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
