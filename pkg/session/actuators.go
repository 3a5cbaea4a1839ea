package session

import (
	"fmt"
	"strings"

	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
)

// ActuatorTest commands a component on and verifies the
// acknowledgement. Commands go out in order; the test succeeds when
// every response contains Expect.
type ActuatorTest struct {
	Name     string
	Commands []string
	Expect   string
}

// Precondition gates an adaptation on a live parameter. Parameter
// names a PID definition; Check decides on its current value.
type Precondition struct {
	Parameter string
	Check     func(v float64) bool
	Describe  string
}

// Adaptation is a learned-values reset or relearn procedure. All
// preconditions must hold at the moment the adaptation starts; an
// unmet precondition skips the adaptation rather than failing the
// session.
type Adaptation struct {
	Name          string
	Preconditions []Precondition
	Commands      []string
}

// DefaultActuatorTests covers the actuators reachable over the
// standardized component test service.
func DefaultActuatorTests() []ActuatorTest {
	return []ActuatorTest{
		{
			Name:     "evap system leak test",
			Commands: []string{obd.Command(0x08, 0x01)},
			Expect:   "48",
		},
	}
}

func engineOff(v float64) bool  { return v == 0 }
func engineIdle(v float64) bool { return v >= 500 && v <= 1100 }

// DefaultAdaptations are the relearn procedures a generic session
// offers. Command byte sequences follow the common aftermarket
// convention for generic modules.
func DefaultAdaptations() []Adaptation {
	return []Adaptation{
		{
			Name: "throttle position relearn",
			Preconditions: []Precondition{
				{Parameter: "engine_rpm", Check: engineOff, Describe: "engine must be off (ignition on)"},
			},
			Commands: []string{obd.Command(0x08, 0x02)},
		},
		{
			Name: "idle speed relearn",
			Preconditions: []Precondition{
				{Parameter: "engine_rpm", Check: engineIdle, Describe: "engine must be idling"},
				{Parameter: "coolant_temperature", Check: func(v float64) bool { return v >= 70 }, Describe: "engine must be warm"},
			},
			Commands: []string{obd.Command(0x08, 0x03)},
		},
	}
}

func (s *Session) testActuators() {
	total := len(s.Actuators)
	for i, test := range s.Actuators {
		if s.cancelled() {
			return
		}
		s.message("actuator test: " + test.Name)

		res := ActuatorResult{Name: test.Name, Success: true}
		for _, cmd := range test.Commands {
			if s.cancelled() {
				return
			}
			resp, err := s.Transport.Send(s.ctx, cmd, s.CommandWait)
			if cancelledErr(err) {
				return
			}
			res.Response = resp
			if err != nil || !strings.Contains(strings.ToUpper(resp), test.Expect) {
				res.Success = false
				if err != nil && !isSilence(err) {
					s.stepError(err)
				}
				break
			}
		}

		s.mu.Lock()
		s.result.Actuators = append(s.result.Actuators, res)
		s.mu.Unlock()
		s.publish(ebus.Event{Topic: ebus.TopicResult, Name: test.Name, Doc: res})
		s.stepProgress(85, 90, i, total)
	}
}

// performAdaptations runs each adaptation whose preconditions hold
// right now. Preconditions are verified against fresh readings, never
// against the earlier live data run.
func (s *Session) performAdaptations() {
	total := len(s.Adaptations)
	for i, ad := range s.Adaptations {
		if s.cancelled() {
			return
		}
		s.message("adaptation: " + ad.Name)

		res := AdaptationResult{Name: ad.Name}
		if reason, ok := s.checkPreconditions(ad.Preconditions); !ok {
			res.Reason = reason
			s.recordWarning(fmt.Sprintf("adaptation %q skipped: %s", ad.Name, reason))
		} else {
			res.Performed = true
			res.Success = true
			for _, cmd := range ad.Commands {
				if s.cancelled() {
					return
				}
				if _, err := s.Transport.Send(s.ctx, cmd, s.CommandWait); err != nil {
					if cancelledErr(err) {
						return
					}
					res.Success = false
					res.Reason = err.Error()
					if !isSilence(err) {
						s.stepError(err)
					}
					break
				}
			}
		}

		s.mu.Lock()
		s.result.Adaptations = append(s.result.Adaptations, res)
		s.mu.Unlock()
		s.publish(ebus.Event{Topic: ebus.TopicResult, Name: ad.Name, Doc: res})
		s.stepProgress(90, 95, i, total)
	}
}

// checkPreconditions reads each gating parameter once. An unreadable
// parameter counts as unmet; adaptations must never run blind.
func (s *Session) checkPreconditions(pre []Precondition) (string, bool) {
	for _, p := range pre {
		def, ok := obd.ByName(p.Parameter)
		if !ok {
			return "unknown parameter " + p.Parameter, false
		}
		resp, err := s.Transport.Send(s.ctx, obd.Command(def.Service, def.PID), s.CommandWait)
		if err != nil {
			return fmt.Sprintf("%s unreadable: %v", p.Parameter, err), false
		}
		v, ok := obd.ParseResponse(resp, def)
		if !ok {
			return p.Parameter + " unreadable", false
		}
		if !p.Check(v.Float) {
			return p.Describe, false
		}
	}
	return "", true
}
