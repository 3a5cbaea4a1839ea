package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/obddiag/obdscan/pkg/adapter"
	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
)

// scanECUs probes every control unit of the vehicle model with an
// addressed supported-PIDs query and records reachability plus the
// measured round-trip time. A deep scan additionally asks each
// responding unit for its identification.
func (s *Session) scanECUs() {
	total := len(s.Vehicle.ECUs)
	for i, ecu := range s.Vehicle.ECUs {
		if s.cancelled() {
			return
		}
		s.message("probing " + ecu.Name)

		res := ECUResult{Name: ecu.Name, Addr: ecu.Addr}
		start := time.Now()
		resp, err := s.Transport.Send(s.ctx, obd.AddressedCommand(ecu.Addr, 0x01, 0x00), s.CommandWait)
		res.ResponseTime = time.Since(start)

		if cancelledErr(err) {
			return
		}
		switch {
		case err == nil && len(obd.ParseSupported(resp, 0x01, 0x00)) > 0:
			res.Status = ECUConnected
		case isSilence(err):
			res.Status = ECUNotResponding
		case err != nil:
			res.Status = ECUError
			s.stepError(err)
		default:
			// replied, but with nothing we could decode
			res.Status = ECUError
		}

		if res.Status == ECUConnected {
			res.Identification = s.identifyECU(ecu.Addr)
		}

		s.mu.Lock()
		s.result.ECUs = append(s.result.ECUs, res)
		s.mu.Unlock()
		s.publish(ebus.Event{Topic: ebus.TopicStatus, Name: ecu.Name, Text: res.Status.String()})
		s.stepProgress(10, 30, i, total)
	}
}

// identifyECU reads the ECU name via service 09 PID 0A. Not all units
// implement it; failure just leaves the field empty.
func (s *Session) identifyECU(addr byte) string {
	resp, err := s.Transport.Send(s.ctx, obd.AddressedCommand(addr, 0x09, 0x0A), s.CommandWait)
	if err != nil {
		return ""
	}
	return asciiPayload(resp)
}

// asciiPayload extracts the printable characters of a hex response,
// enough for ECU name strings without a full ISO-TP reassembly.
func asciiPayload(resp string) string {
	var sb strings.Builder
	for _, f := range strings.Fields(resp) {
		if len(f) != 2 {
			continue
		}
		b := hexByte(f)
		if b >= 0x20 && b < 0x7F {
			sb.WriteByte(b)
		}
	}
	return strings.TrimSpace(sb.String())
}

func hexByte(s string) byte {
	var b byte
	for i := 0; i < 2; i++ {
		b <<= 4
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			b |= c - '0'
		case c >= 'A' && c <= 'F':
			b |= c - 'A' + 10
		case c >= 'a' && c <= 'f':
			b |= c - 'a' + 10
		}
	}
	return b
}

// cancelledErr reports whether a command failed because the session
// was cancelled rather than because of the link or the bus. Such a
// failure is not a fault of the unit being queried and is never
// recorded in the result.
func cancelledErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isSilence reports whether an error means the bus stayed quiet rather
// than the link breaking.
func isSilence(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, adapter.ErrTimeout) {
		return true
	}
	var protoErr *adapter.ProtocolError
	if errors.As(err, &protoErr) {
		switch protoErr.Token {
		case "NO DATA", "UNABLE TO CONNECT":
			return true
		}
	}
	return false
}
