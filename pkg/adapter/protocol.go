package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

var protocolNames = map[string]string{
	"0": "Auto",
	"1": "SAE J1850 PWM",
	"2": "SAE J1850 VPW",
	"3": "ISO 9141-2",
	"4": "ISO 14230-4 KWP (5 baud init)",
	"5": "ISO 14230-4 KWP (fast init)",
	"6": "ISO 15765-4 CAN (11 bit, 500 kbaud)",
	"7": "ISO 15765-4 CAN (29 bit, 500 kbaud)",
	"8": "ISO 15765-4 CAN (11 bit, 250 kbaud)",
	"9": "ISO 15765-4 CAN (29 bit, 250 kbaud)",
	"A": "SAE J1939 CAN",
	"B": "User defined CAN 1",
	"C": "User defined CAN 2",
}

// ProtocolName resolves an adapter protocol code to a readable name.
func ProtocolName(code string) string {
	if name, ok := protocolNames[strings.ToUpper(code)]; ok {
		return name
	}
	return "Unknown"
}

// SetProtocol selects a bus protocol ("0" lets the adapter choose).
func (c *Client) SetProtocol(ctx context.Context, code string, wait time.Duration) error {
	if _, err := c.Send(ctx, "ATSP"+code, wait); err != nil {
		return fmt.Errorf("set protocol %s: %w", code, err)
	}
	c.mu.Lock()
	c.info.Protocol = ProtocolName(code)
	c.mu.Unlock()
	return nil
}

// DetectProtocol asks the adapter to auto-negotiate: protocol auto,
// one broadcast probe to force the handshake, then read back the
// detected code.
func (c *Client) DetectProtocol(ctx context.Context, wait time.Duration) (string, error) {
	if _, err := c.Send(ctx, "ATSP0", wait); err != nil {
		return "", fmt.Errorf("set auto protocol: %w", err)
	}
	if _, err := c.Send(ctx, "0100", wait); err != nil {
		return "", fmt.Errorf("protocol probe: %w", err)
	}
	resp, err := c.Send(ctx, "ATDPN", wait)
	if err != nil {
		return "", fmt.Errorf("read protocol: %w", err)
	}
	// the adapter prefixes "A" when it picked the protocol itself
	code := strings.TrimPrefix(strings.TrimSpace(firstLine(resp)), "A")
	c.mu.Lock()
	c.info.Protocol = ProtocolName(code)
	c.mu.Unlock()
	return code, nil
}

// SetAdapterTimeout sets the adapter-side response timeout in units of
// about four milliseconds.
func (c *Client) SetAdapterTimeout(ctx context.Context, units byte, wait time.Duration) error {
	if _, err := c.Send(ctx, fmt.Sprintf("ATST%02X", units), wait); err != nil {
		return fmt.Errorf("set adapter timeout: %w", err)
	}
	return nil
}

// Voltage reads the adapter's supply voltage reading, e.g. "12.6V".
func (c *Client) Voltage(ctx context.Context, wait time.Duration) (string, error) {
	resp, err := c.Send(ctx, "ATRV", wait)
	if err != nil {
		return "", err
	}
	return firstLine(resp), nil
}
