// Package sigfox drives a Wisol WSSFM1x Sigfox module over its AT command
// UART.
package sigfox

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"bike-tracker/internal/packet"
	"bike-tracker/internal/tracker"
)

const (
	// CommandTimeout bounds plain AT commands.
	CommandTimeout = 2 * time.Second
	// UplinkTimeout covers the three repetitions of an uplink frame.
	UplinkTimeout = 15 * time.Second
	// DownlinkTimeout covers the uplink plus the receive window.
	DownlinkTimeout = 60 * time.Second

	readTimeout = 100 * time.Millisecond
)

var (
	ErrTimeout  = errors.New("modem did not answer in time")
	ErrRejected = errors.New("modem rejected the command")
)

// Port is the UART the module hangs off. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Modem is a Sigfox radio implementing tracker.Radio.
type Modem struct {
	port     Port
	downlink bool
	logger   func(string, ...interface{})

	// overridable in tests
	commandTimeout  time.Duration
	uplinkTimeout   time.Duration
	downlinkTimeout time.Duration

	mu  sync.Mutex
	buf []byte
}

// Open opens the UART at path.
func Open(path string, opts PortOptions, downlink bool, logger func(string, ...interface{})) (*Modem, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	return NewModem(port, downlink, logger)
}

// NewModem wraps an already opened port. With downlink set every uplink asks
// the network for an 8 byte answer.
func NewModem(port Port, downlink bool, logger func(string, ...interface{})) (*Modem, error) {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, errors.Wrap(err, "failed to set read timeout")
	}

	return &Modem{
		port:            port,
		downlink:        downlink,
		logger:          logger,
		commandTimeout:  CommandTimeout,
		uplinkTimeout:   UplinkTimeout,
		downlinkTimeout: DownlinkTimeout,
	}, nil
}

// Init checks the module answers and logs its identity.
func (m *Modem) Init() error {
	if err := m.WakeUp(); err != nil {
		return errors.Wrap(err, "sigfox module not responding")
	}

	lines, err := m.command("AT$I=10", m.commandTimeout)
	if err != nil {
		return errors.Wrap(err, "failed to read device id")
	}
	if len(lines) > 0 {
		m.log("Device ID %s", lines[0])
	}
	return nil
}

// WakeUp brings the module out of sleep. Any UART traffic wakes it, the
// first command may be lost.
func (m *Modem) WakeUp() error {
	if _, err := m.command("AT", m.commandTimeout); err == nil {
		return nil
	}
	_, err := m.command("AT", m.commandTimeout)
	return err
}

// Sleep puts the module in its lowest power state.
func (m *Modem) Sleep() error {
	_, err := m.command("AT$P=1", m.commandTimeout)
	return err
}

// Send transmits one uplink frame.
func (m *Modem) Send(payload []byte) (tracker.Ack, error) {
	if len(payload) > packet.MaxPayload {
		return tracker.Ack{}, errors.Errorf("payload of %d bytes exceeds %d", len(payload), packet.MaxPayload)
	}

	cmd := "AT$SF=" + hex.EncodeToString(payload)
	if !m.downlink {
		if _, err := m.command(cmd, m.uplinkTimeout); err != nil {
			return tracker.Ack{}, err
		}
		return tracker.Ack{}, nil
	}

	lines, err := m.command(cmd+",1", m.downlinkTimeout, "RX=")
	if err != nil {
		return tracker.Ack{}, err
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "RX=") {
			value, err := parseDownlink(line)
			if err != nil {
				m.log("Ignoring malformed downlink %q: %v", line, err)
				return tracker.Ack{}, nil
			}
			return tracker.Ack{Value: value, Received: true}, nil
		}
	}
	return tracker.Ack{}, nil
}

// Close releases the UART.
func (m *Modem) Close() error {
	return m.port.Close()
}

// command writes cmd and collects response lines until OK, or until a line
// with one of the given prefixes when any are given. Echoed commands are
// dropped.
func (m *Modem) command(cmd string, timeout time.Duration, until ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = m.buf[:0]
	m.log(">> %s", cmd)
	if _, err := io.WriteString(m.port, cmd+"\r\n"); err != nil {
		return nil, errors.Wrap(err, "serial write")
	}

	deadline := time.Now().Add(timeout)
	var lines []string
	sawOK := false
	for {
		line, err := m.readLine(deadline)
		if err != nil {
			if errors.Is(err, ErrTimeout) && sawOK {
				// Uplink went out, no downlink arrived.
				return lines, nil
			}
			return lines, errors.Wrapf(err, "%s", cmd)
		}
		m.log("<< %s", line)

		switch {
		case line == cmd:
		case line == "OK":
			if len(until) == 0 {
				return lines, nil
			}
			sawOK = true
		case strings.HasPrefix(line, "ERR"):
			return lines, errors.Wrapf(ErrRejected, "%s: %s", cmd, line)
		default:
			lines = append(lines, line)
			for _, prefix := range until {
				if strings.HasPrefix(line, prefix) {
					return lines, nil
				}
			}
		}
	}
}

func (m *Modem) readLine(deadline time.Time) (string, error) {
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(m.buf, '\n'); i >= 0 {
			line := strings.TrimSpace(string(m.buf[:i]))
			m.buf = m.buf[i+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}

		n, err := m.port.Read(chunk)
		if err != nil {
			return "", errors.Wrap(err, "serial read")
		}
		m.buf = append(m.buf, chunk[:n]...)
	}
}

func (m *Modem) log(format string, args ...interface{}) {
	m.logger("[SIGFOX] "+format, args...)
}

// parseDownlink decodes "RX=01 02 03 04 05 06 07 08" into a big-endian value.
func parseDownlink(line string) (uint64, error) {
	digits := strings.ReplaceAll(strings.TrimPrefix(line, "RX="), " ", "")
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 || len(raw) > 8 {
		return 0, fmt.Errorf("downlink of %d bytes", len(raw))
	}

	var frame [8]byte
	copy(frame[8-len(raw):], raw)
	return binary.BigEndian.Uint64(frame[:]), nil
}
