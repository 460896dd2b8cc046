package mm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// Commander sends AT commands to a modem and returns the raw response.
type Commander interface {
	SendCommand(modemPath dbus.ObjectPath, command string, timeout time.Duration) (string, error)
}

// GNSS drives the GNSS engine of a SIMCom modem through AT commands.
type GNSS struct {
	cmd    Commander
	path   dbus.ObjectPath
	logger func(string, ...interface{})
}

// NewGNSS binds the engine of the modem at path.
func NewGNSS(cmd Commander, path dbus.ObjectPath, logger func(string, ...interface{})) *GNSS {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	return &GNSS{cmd: cmd, path: path, logger: logger}
}

// Configure disables auto-start so the engine only runs when asked, and
// powers the active antenna.
func (g *GNSS) Configure() error {
	g.log("Configuring GNSS engine...")

	if _, err := g.cmd.SendCommand(g.path, "AT+CGPSAUTO=0", 5*time.Second); err != nil {
		return errors.Wrap(err, "failed to disable GPS auto-start")
	}

	// Set accuracy threshold (50 meters)
	if _, err := g.cmd.SendCommand(g.path, "AT+CGPSHOR=50", 5*time.Second); err != nil {
		return errors.Wrap(err, "failed to set GPS accuracy threshold")
	}

	// Antenna supply at 3.05V
	if _, err := g.cmd.SendCommand(g.path, "AT+CVAUXV=3050", 5*time.Second); err != nil {
		return errors.Wrap(err, "failed to set GPS antenna voltage")
	}
	if _, err := g.cmd.SendCommand(g.path, "AT+CVAUXS=1", 5*time.Second); err != nil {
		return errors.Wrap(err, "failed to enable GPS antenna supply")
	}

	g.log("GNSS configuration complete")
	return nil
}

// Start powers the engine up.
func (g *GNSS) Start(mode int) error {
	_, err := g.cmd.SendCommand(g.path, fmt.Sprintf("AT+CGPS=1,%d", mode), 10*time.Second)
	return err
}

// Stop powers the engine down.
func (g *GNSS) Stop() error {
	_, err := g.cmd.SendCommand(g.path, "AT+CGPS=0", 5*time.Second)
	return err
}

// Running reports whether the engine is powered.
func (g *GNSS) Running() (bool, error) {
	resp, err := g.cmd.SendCommand(g.path, "AT+CGPS?", 5*time.Second)
	if err != nil {
		return false, err
	}

	value := extractPrefixedValue(resp, "+CGPS:")
	mode, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(mode) == "1", nil
}

// Info queries the current fix.
func (g *GNSS) Info() (*GNSSInfo, error) {
	resp, err := g.cmd.SendCommand(g.path, "AT+CGNSSINFO", 5*time.Second)
	if err != nil {
		return nil, err
	}
	return ParseGNSSInfo(extractPrefixedValue(resp, "+CGNSSINFO:"))
}

func (g *GNSS) log(format string, args ...interface{}) {
	g.logger("[GNSS] "+format, args...)
}

// GNSSInfo is a parsed AT+CGNSSINFO response.
// Format: mode,GPS-SVs,GLONASS-SVs,BEIDOU-SVs,lat,N/S,lon,E/W,date,time,alt,speed,course,PDOP,HDOP,VDOP
type GNSSInfo struct {
	Mode       int
	Satellites uint
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Speed      float64 // knots
	Timestamp  time.Time
	Valid      bool
}

// ParseGNSSInfo parses the value after "+CGNSSINFO:". A response without a
// fix is returned as an invalid info, not as an error.
func ParseGNSSInfo(info string) (*GNSSInfo, error) {
	parts := strings.Split(strings.TrimSpace(info), ",")
	if len(parts) < 13 {
		return &GNSSInfo{}, nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	gnss := &GNSSInfo{}
	if parts[0] != "" {
		mode, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid fix mode %q", parts[0])
		}
		gnss.Mode = mode
	}

	for _, sv := range parts[1:4] {
		if sv == "" {
			continue
		}
		n, err := strconv.Atoi(sv)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid satellite count %q", sv)
		}
		gnss.Satellites += uint(n)
	}

	if gnss.Mode < 2 || parts[4] == "" || parts[6] == "" {
		return gnss, nil
	}

	lat, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid latitude %q", parts[4])
	}
	gnss.Latitude = nmeaToDecimal(lat)
	if parts[5] == "S" {
		gnss.Latitude = -gnss.Latitude
	}

	lon, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid longitude %q", parts[6])
	}
	gnss.Longitude = nmeaToDecimal(lon)
	if parts[7] == "W" {
		gnss.Longitude = -gnss.Longitude
	}

	if alt, err := strconv.ParseFloat(parts[10], 64); err == nil {
		gnss.Altitude = alt
	}
	if speed, err := strconv.ParseFloat(parts[11], 64); err == nil {
		gnss.Speed = speed
	}

	// DDMMYY and HHMMSS.S
	if t, err := time.Parse("020106150405", parts[8]+truncateSeconds(parts[9])); err == nil {
		gnss.Timestamp = t
	}

	gnss.Valid = true
	return gnss, nil
}

func truncateSeconds(hhmmss string) string {
	if len(hhmmss) > 6 {
		return hhmmss[:6]
	}
	return hhmmss
}

// nmeaToDecimal converts NMEA coordinate to decimal degrees
func nmeaToDecimal(nmea float64) float64 {
	// NMEA format: dddmm.mmmmmm (degrees + minutes)
	degrees := int(nmea / 100)
	minutes := nmea - float64(degrees*100)
	return float64(degrees) + (minutes / 60.0)
}

func extractPrefixedValue(resp, prefix string) string {
	lines := strings.Split(resp, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			value := strings.TrimPrefix(line, prefix)
			return strings.TrimSpace(value)
		}
	}
	return ""
}
