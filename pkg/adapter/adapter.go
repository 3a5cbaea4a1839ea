// Package adapter implements the line-oriented command protocol of an
// ELM327-compatible OBD-II interface over serial, Bluetooth RFCOMM or
// TCP.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/obddiag/obdscan/pkg/debug"
)

// readSlice is how long one blocking read waits before the loop checks
// cancellation and the command deadline again.
const readSlice = 50 * time.Millisecond

// DeviceInfo is whatever the adapter told us about itself during
// initialization.
type DeviceInfo struct {
	Identification string
	Firmware       string
	Voltage        string
	Protocol       string
}

// Stats accumulate for the lifetime of one connection.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	Commands      uint64
	Errors        uint64
	Timeouts      uint64
}

// Config for a transport client.
type Config struct {
	Descriptor  Descriptor
	OnMessage   func(string)
	OnError     func(error)
	Trace       *debug.Logger
	StripSpaces bool
}

// Client owns exactly one physical link and serializes all commands
// over it. Safe for concurrent use, but callers are expected to hand
// it to a single session at a time.
type Client struct {
	cfg Config

	mu    sync.Mutex // command lock, held for write+read of one exchange
	ch    Channel
	info  DeviceInfo
	stats Stats
}

func New(cfg Config) *Client {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(string) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &Client{cfg: cfg}
}

// initSequence is sent after reset: echo off, headers on, linefeeds
// off, spacing on, memory off, adaptive timing on.
var initSequence = []string{"ATE0", "ATH1", "ATL0", "ATS1", "ATM0", "ATAT1"}

// Connect opens the link described by the descriptor and runs the
// adapter initialization handshake. On any failure the link is closed
// again and a ConnectionError is returned.
func (c *Client) Connect(ctx context.Context) (DeviceInfo, error) {
	c.mu.Lock()
	if c.ch != nil {
		c.mu.Unlock()
		return c.info, nil
	}

	ch, err := openChannel(c.cfg.Descriptor)
	if err != nil {
		c.mu.Unlock()
		return DeviceInfo{}, &ConnectionError{Op: "open channel", Err: err}
	}
	if err := ch.SetReadTimeout(readSlice); err != nil {
		ch.Close()
		c.mu.Unlock()
		return DeviceInfo{}, &ConnectionError{Op: "set read timeout", Err: err}
	}
	c.ch = ch
	c.stats = Stats{}
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.Disconnect()
		return DeviceInfo{}, err
	}

	c.mu.Lock()
	info := c.info
	c.mu.Unlock()
	return info, nil
}

func (c *Client) initialize(ctx context.Context) error {
	wait := c.cfg.Descriptor.Timeout
	if wait == 0 {
		wait = 5 * time.Second
	}

	// reset first; the chip needs a moment before it starts answering
	resp, err := c.Send(ctx, "ATZ", wait)
	if err != nil {
		return &ConnectionError{Op: "reset", Err: err}
	}
	if !strings.Contains(strings.ToUpper(resp), "ELM") {
		return &ConnectionError{Op: "reset", Err: fmt.Errorf("no adapter identification in %q", resp)}
	}
	c.mu.Lock()
	c.info.Identification = firstLine(resp)
	c.mu.Unlock()

	for _, cmd := range initSequence {
		if _, err := c.Send(ctx, cmd, wait); err != nil {
			return &ConnectionError{Op: cmd, Err: err}
		}
	}

	if fw, err := c.Send(ctx, "ATI", wait); err == nil {
		c.mu.Lock()
		c.info.Firmware = firstLine(fw)
		c.mu.Unlock()
	}
	if v, err := c.Send(ctx, "ATRV", wait); err == nil {
		c.mu.Lock()
		c.info.Voltage = firstLine(v)
		c.mu.Unlock()
	}

	c.cfg.OnMessage(fmt.Sprintf("adapter initialized: %s", c.Info().Identification))
	return nil
}

// Send writes one command terminated by a carriage return and reads
// until the prompt marker or until wait elapses. All sends are
// serialized; no two commands are ever in flight on one channel.
//
// A timeout returns ErrTimeout rather than partial data. An explicit
// adapter error token returns a ProtocolError alongside the cleaned
// response.
func (c *Client) Send(ctx context.Context, command string, wait time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		return "", ErrNotConnected
	}

	c.cfg.Trace.Logf(">> %s", command)

	n, err := c.ch.Write([]byte(command + "\r"))
	c.stats.BytesSent += uint64(n)
	if err != nil {
		c.stats.Errors++
		c.dropLocked(fmt.Errorf("write %q: %w", command, err))
		return "", &ConnectionError{Op: "write", Err: err}
	}
	c.stats.Commands++

	raw, err := c.readUntilPrompt(ctx, wait)
	if err != nil {
		return "", err
	}

	resp := Clean(raw, command, c.cfg.StripSpaces)
	c.cfg.Trace.Logf("<< %s", resp)

	if tok := errorToken(resp); tok != "" {
		c.stats.Errors++
		return resp, &ProtocolError{Token: tok, Response: resp}
	}
	return resp, nil
}

// readUntilPrompt accumulates input in short slices so that context
// cancellation takes effect mid-read instead of after the full wait.
func (c *Client) readUntilPrompt(ctx context.Context, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	var sb strings.Builder
	buf := make([]byte, 256)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := c.ch.Read(buf)
		if err != nil {
			c.stats.Errors++
			c.dropLocked(fmt.Errorf("read: %w", err))
			return "", &ConnectionError{Op: "read", Err: err}
		}
		if n > 0 {
			c.stats.BytesReceived += uint64(n)
			sb.Write(buf[:n])
			if strings.Contains(sb.String(), ">") {
				return sb.String(), nil
			}
		}
		if time.Now().After(deadline) {
			c.stats.Timeouts++
			return "", fmt.Errorf("%w after %s", ErrTimeout, wait)
		}
	}
}

// dropLocked tears the connection down after a channel level fault.
// Caller must hold the command lock.
func (c *Client) dropLocked(err error) {
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
		c.info = DeviceInfo{}
	}
	c.cfg.OnError(err)
}

// Disconnect closes the channel and clears device info. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return
	}
	c.ch.Close()
	c.ch = nil
	c.info = DeviceInfo{}
}

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil
}

// Info returns the device identification recorded at connect time.
func (c *Client) Info() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Stats returns a snapshot of the connection counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
