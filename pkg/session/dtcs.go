package session

import (
	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
)

var dtcServices = []struct {
	service byte
	origin  dtc.Origin
}{
	{0x03, dtc.Current},
	{0x07, dtc.Pending},
	{0x0A, dtc.Permanent},
}

// freezeFramePIDs are captured for the first current fault code of
// each unit.
var freezeFramePIDs = []string{"engine_rpm", "vehicle_speed", "coolant_temperature"}

// dtcTarget is one unit to query fault codes from. A session without
// any reachable unit falls back to a single broadcast target so that a
// partially failed scan still yields the bus-wide codes.
type dtcTarget struct {
	name      string
	addr      byte
	addressed bool
}

func (s *Session) dtcTargets() []dtcTarget {
	var targets []dtcTarget
	s.mu.Lock()
	for _, e := range s.result.ECUs {
		if e.Status == ECUConnected {
			targets = append(targets, dtcTarget{name: e.Name, addr: e.Addr, addressed: true})
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		targets = append(targets, dtcTarget{name: "broadcast"})
	}
	return targets
}

// readDTCs retrieves current, pending and permanent fault codes from
// every reachable unit. A silent bus for one service means no codes of
// that origin; only a broken link is recorded as an error.
func (s *Session) readDTCs() {
	targets := s.dtcTargets()
	for i, t := range targets {
		if s.cancelled() {
			return
		}
		s.readTargetDTCs(t)
		s.stepProgress(30, 50, i, len(targets))
	}
}

func (s *Session) readTargetDTCs(t dtcTarget) {
	for _, svc := range dtcServices {
		if s.cancelled() {
			return
		}
		cmd := obd.Command(svc.service)
		if t.addressed {
			cmd = obd.AddressedCommand(t.addr, svc.service)
		}
		resp, err := s.Transport.Send(s.ctx, cmd, s.CommandWait)
		if cancelledErr(err) {
			return
		}
		if err != nil && !isSilence(err) {
			s.stepError(err)
			continue
		}

		for _, code := range obd.ParseDTCPayload(resp, svc.service) {
			d := dtc.New(code, svc.origin, t.name, s.Codes)
			s.mu.Lock()
			s.result.DTCs.Codes = append(s.result.DTCs.Codes, d)
			s.result.DTCs.BySeverity[d.Severity]++
			s.mu.Unlock()
			s.message("fault code " + code + " (" + svc.origin.String() + ")")
			s.publish(ebus.Event{Topic: ebus.TopicStatus, Name: code, Text: d.Description})
		}
	}

	s.attachFreezeFrame(t)
}

// attachFreezeFrame reads the frame 0 snapshot for the unit's first
// current code.
func (s *Session) attachFreezeFrame(t dtcTarget) {
	s.mu.Lock()
	var target *dtc.DTC
	for i := range s.result.DTCs.Codes {
		d := &s.result.DTCs.Codes[i]
		if d.Origin == dtc.Current && d.ECU == t.name && d.FreezeFrame == nil {
			target = d
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return
	}

	frame := &dtc.FreezeFrame{}
	captured := false
	for _, name := range freezeFramePIDs {
		if s.cancelled() {
			return
		}
		def, ok := obd.ByName(name)
		if !ok {
			continue
		}
		cmd := obd.Command(0x02, def.PID, 0x00)
		if t.addressed {
			cmd = obd.AddressedCommand(t.addr, 0x02, def.PID, 0x00)
		}
		resp, err := s.Transport.Send(s.ctx, cmd, s.CommandWait)
		if err != nil {
			continue
		}
		v, ok := obd.ParseFreezeFrame(resp, def, 0x00)
		if !ok {
			continue
		}
		captured = true
		f := v.Float
		switch name {
		case "engine_rpm":
			frame.RPM = &f
		case "vehicle_speed":
			frame.Speed = &f
		case "coolant_temperature":
			frame.Coolant = &f
		}
	}
	if captured {
		s.mu.Lock()
		target.FreezeFrame = frame
		s.mu.Unlock()
	}
}
