package mm

import (
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	ModemManagerService = "org.freedesktop.ModemManager1"
	ModemManagerPath    = "/org/freedesktop/ModemManager1"

	ModemInterface         = "org.freedesktop.ModemManager1.Modem"
	ModemLocationInterface = "org.freedesktop.ModemManager1.Modem.Location"

	DBusObjectManager = "org.freedesktop.DBus.ObjectManager"
)

// Client is a D-Bus client for ModemManager, limited to what the GNSS
// engine of a cellular modem needs.
type Client struct {
	conn   *dbus.Conn
	logger func(string, ...interface{})
}

// NewClient connects to the system bus.
func NewClient(logger func(string, ...interface{})) (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to system bus")
	}

	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

// Close closes the D-Bus connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// FindModem finds the first available modem
func (c *Client) FindModem() (dbus.ObjectPath, error) {
	obj := c.conn.Object(ModemManagerService, ModemManagerPath)

	var managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := obj.Call(DBusObjectManager+".GetManagedObjects", 0).Store(&managedObjects)
	if err != nil {
		return "", errors.Wrap(err, "failed to get managed objects")
	}

	for path, interfaces := range managedObjects {
		if _, hasModem := interfaces[ModemInterface]; hasModem {
			return path, nil
		}
	}

	return "", errors.New("no modem found")
}

// SendCommand sends an AT command to the modem. ModemManager must run in
// debug mode for this to be allowed.
func (c *Client) SendCommand(modemPath dbus.ObjectPath, command string, timeout time.Duration) (string, error) {
	obj := c.conn.Object(ModemManagerService, modemPath)

	timeoutSec := uint32(timeout.Seconds())
	if timeoutSec == 0 {
		timeoutSec = 10
	}

	c.log(">> %s (timeout: %ds)", command, timeoutSec)

	var response string
	err := obj.Call(ModemInterface+".Command", 0, command, timeoutSec).Store(&response)
	if err != nil {
		return "", errors.Wrapf(err, "AT command failed: %s", command)
	}

	c.log("<< %s", strings.TrimSpace(response))
	return response, nil
}

// SetupLocation selects which location sources ModemManager manages.
func (c *Client) SetupLocation(modemPath dbus.ObjectPath, sources uint32, signalLocation bool) error {
	obj := c.conn.Object(ModemManagerService, modemPath)
	c.log("Call %s.Setup(%#x, %v)", ModemLocationInterface, sources, signalLocation)
	return obj.Call(ModemLocationInterface+".Setup", 0, sources, signalLocation).Err
}

func (c *Client) log(format string, args ...interface{}) {
	c.logger("[MM] "+format, args...)
}
