package session

import (
	"github.com/obddiag/obdscan/pkg/ebus"
	"github.com/obddiag/obdscan/pkg/obd"
	"github.com/obddiag/obdscan/pkg/sensors"
)

// testSensors runs the configured sensor tests. Each test queries its
// PIDs once, in order, and hands the decoded values to the validator;
// PIDs that stay silent or decode badly are simply absent from the
// measurement list, which validators map onto NotAvailable.
func (s *Session) testSensors() {
	total := len(s.SensorTests)
	for i, test := range s.SensorTests {
		if s.cancelled() {
			return
		}
		s.message("sensor test: " + test.Name)

		wait := s.CommandWait
		if test.Timeout > 0 {
			wait = test.Timeout
		}

		var measurements []float64
		for _, def := range test.PIDs {
			if s.cancelled() {
				return
			}
			resp, err := s.Transport.Send(s.ctx, obd.Command(def.Service, def.PID), wait)
			if cancelledErr(err) {
				return
			}
			if err != nil {
				if !isSilence(err) {
					s.stepError(err)
				}
				continue
			}
			if v, ok := obd.ParseResponse(resp, def); ok {
				measurements = append(measurements, v.Float)
			}
		}

		res := test.Validate(measurements)
		s.mu.Lock()
		s.result.Sensors = append(s.result.Sensors, res)
		s.mu.Unlock()
		s.publish(ebus.Event{Topic: ebus.TopicResult, Name: res.Sensor, Text: res.Verdict.String(), Doc: res})
		switch res.Verdict {
		case sensors.Fail:
			s.recommend("inspect " + res.Sensor + ": " + res.Message)
		case sensors.Warning:
			s.recommend("check " + res.Sensor + ": " + res.Message)
		}
		s.stepProgress(70, 85, i, total)
	}
}
