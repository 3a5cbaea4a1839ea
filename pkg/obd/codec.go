package obd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value is a decoded response frame. Raw always holds the cleaned
// response text; the numeric fields are only meaningful when the
// decode succeeded.
type Value struct {
	Raw   string
	Float float64
	Unit  string
	Min   float64
	Max   float64
	Time  time.Time
}

// Command builds the outgoing command string for a service and up to
// two PID bytes, e.g. Command(0x01, 0x0C) == "010C" and
// Command(0x03) == "03".
func Command(service byte, pid ...byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%02X", service)
	for _, p := range pid {
		fmt.Fprintf(&sb, "%02X", p)
	}
	return sb.String()
}

// AddressedCommand prefixes a command with an ECU bus address for an
// addressed, as opposed to broadcast, query.
func AddressedCommand(addr byte, service byte, pid ...byte) string {
	return fmt.Sprintf("%02X%s", addr, Command(service, pid...))
}

// tokens splits a raw response into hex byte values, skipping anything
// that is not a hex pair. CAN header prefixes like "7E8" are dropped
// the same way.
func tokens(raw string) []byte {
	var out []byte
	for _, f := range strings.Fields(raw) {
		if len(f) != 2 {
			continue
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// payload locates the positive response header (service+0x40 followed
// by the PID) in a token stream and returns the bytes after it.
func payload(data []byte, service, pid byte) ([]byte, bool) {
	want := service + 0x40
	for i := 0; i < len(data)-1; i++ {
		if data[i] == want && data[i+1] == pid {
			return data[i+2:], true
		}
	}
	return nil, false
}

// ParseResponse decodes a cleaned adapter response according to a PID
// definition. It returns false on any malformed or undersized payload;
// it never panics or errors.
func ParseResponse(raw string, def Definition) (Value, bool) {
	v := Value{
		Raw:  raw,
		Unit: def.Unit,
		Min:  def.Min,
		Max:  def.Max,
		Time: time.Now(),
	}

	data, ok := payload(tokens(raw), def.Service, def.PID)
	if !ok || len(data) < def.Length {
		return v, false
	}
	data = data[:def.Length]

	var n float64
	switch def.Kind {
	case KindU8:
		if def.Length != 1 {
			return v, false
		}
		n = float64(data[0])
	case KindU16:
		if def.Length != 2 {
			return v, false
		}
		n = float64(uint16(data[0])<<8 | uint16(data[1]))
	case KindS8:
		if def.Length != 1 {
			return v, false
		}
		n = float64(data[0]) - 128
	case KindS16:
		if def.Length != 2 {
			return v, false
		}
		n = float64(int16(uint16(data[0])<<8 | uint16(data[1])))
	case KindBitmask:
		var bits uint32
		for _, b := range data {
			bits = bits<<8 | uint32(b)
		}
		n = float64(bits)
	case KindBool:
		if def.Length < 1 {
			return v, false
		}
		if data[0] != 0 {
			n = 1
		}
	default:
		return v, false
	}

	v.Float = n*def.Scale + def.Offset
	return v, true
}

// ParseFreezeFrame decodes a service 02 response for a PID defined
// under service 01. The positive response carries the frame number
// between the PID and the payload.
func ParseFreezeFrame(raw string, def Definition, frame byte) (Value, bool) {
	data, ok := payload(tokens(raw), 0x02, def.PID)
	if !ok || len(data) < 1+def.Length || data[0] != frame {
		return Value{Raw: raw, Unit: def.Unit, Time: time.Now()}, false
	}
	// re-encode as a service 01 response and reuse the scalar decode
	var sb strings.Builder
	fmt.Fprintf(&sb, "%02X %02X", def.Service+0x40, def.PID)
	for _, b := range data[1 : 1+def.Length] {
		fmt.Fprintf(&sb, " %02X", b)
	}
	v, ok := ParseResponse(sb.String(), def)
	v.Raw = raw
	return v, ok
}

// ParseSupported decodes a supported-PID bitmap response (PID 00, 20,
// 40, ...) into the list of PIDs the ECU declares support for.
func ParseSupported(raw string, service, base byte) []byte {
	data, ok := payload(tokens(raw), service, base)
	if !ok || len(data) < 4 {
		return nil
	}
	var pids []byte
	for i := 0; i < 4; i++ {
		for bit := 0; bit < 8; bit++ {
			if data[i]&(0x80>>bit) != 0 {
				pids = append(pids, base+byte(i*8+bit)+1)
			}
		}
	}
	return pids
}
