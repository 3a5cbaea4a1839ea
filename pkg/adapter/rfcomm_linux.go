//go:build linux

package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

type rfcommChannel struct {
	fd   int
	addr string
}

func (r *rfcommChannel) Name() string { return r.addr }

func (r *rfcommChannel) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(r.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (r *rfcommChannel) Read(p []byte) (int, error) {
	n, err := unix.Read(r.fd, p)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (r *rfcommChannel) Write(p []byte) (int, error) {
	return unix.Write(r.fd, p)
}

func (r *rfcommChannel) Close() error {
	return unix.Close(r.fd)
}

// openRFCOMM connects to a Bluetooth serial adapter, probing RFCOMM
// channels 1..30 the way scanners negotiate the serial port profile.
func openRFCOMM(desc Descriptor) (Channel, error) {
	mac, err := parseBTAddr(desc.Address)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for ch := uint8(1); ch <= 30; ch++ {
		fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
		if err != nil {
			return nil, fmt.Errorf("rfcomm socket: %w", err)
		}
		sa := &unix.SockaddrRFCOMM{Addr: mac, Channel: ch}
		if err := unix.Connect(fd, sa); err != nil {
			unix.Close(fd)
			lastErr = err
			continue
		}
		return &rfcommChannel{fd: fd, addr: desc.Address}, nil
	}
	return nil, fmt.Errorf("rfcomm connect %s: no channel accepted: %w", desc.Address, lastErr)
}

// parseBTAddr converts "AA:BB:CC:DD:EE:FF" into the little-endian byte
// order the socket address expects.
func parseBTAddr(s string) ([6]byte, error) {
	var addr [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("invalid bluetooth address %q: %w", s, err)
		}
		addr[5-i] = byte(v)
	}
	return addr, nil
}
