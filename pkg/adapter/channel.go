package adapter

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Kind of physical link the adapter is reached over.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindBluetooth Kind = "bluetooth"
	KindTCP       Kind = "tcp"
)

// Descriptor holds everything needed to open one link. Immutable for
// the lifetime of a connection.
type Descriptor struct {
	Kind     Kind
	Address  string // device path, Bluetooth MAC, or TCP host
	Port     int    // TCP only, default 35000
	Baud     int    // serial only, default 38400
	Protocol string // adapter protocol code, "0" for auto
	Timeout  time.Duration
}

// Channel is one open physical link. Read must return (0, nil) when
// the read timeout elapses without data, so the caller can poll
// cancellation between slices.
type Channel interface {
	io.ReadWriteCloser
	Name() string
	SetReadTimeout(time.Duration) error
}

func openChannel(desc Descriptor) (Channel, error) {
	switch desc.Kind {
	case KindSerial:
		return openSerial(desc)
	case KindBluetooth:
		return openRFCOMM(desc)
	case KindTCP:
		return openTCP(desc)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", desc.Kind)
	}
}

type serialChannel struct {
	serial.Port
	path string
}

func (s *serialChannel) Name() string { return s.path }

func openSerial(desc Descriptor) (Channel, error) {
	baud := desc.Baud
	if baud == 0 {
		baud = 38400
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(desc.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", desc.Address, err)
	}
	return &serialChannel{Port: port, path: desc.Address}, nil
}

type tcpChannel struct {
	conn        net.Conn
	readTimeout time.Duration
}

func (t *tcpChannel) Name() string { return t.conn.RemoteAddr().String() }

func (t *tcpChannel) SetReadTimeout(d time.Duration) error {
	t.readTimeout = d
	return nil
}

func (t *tcpChannel) Read(p []byte) (int, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := t.conn.Read(p)
	if err != nil && os.IsTimeout(err) {
		return n, nil
	}
	return n, err
}

func (t *tcpChannel) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t *tcpChannel) Close() error                { return t.conn.Close() }

func openTCP(desc Descriptor) (Channel, error) {
	port := desc.Port
	if port == 0 {
		port = 35000
	}
	timeout := desc.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	addr := net.JoinHostPort(desc.Address, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpChannel{conn: conn}, nil
}
