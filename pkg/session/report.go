package session

import (
	"fmt"

	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/sensors"
)

// Severity weights subtracted from the health score per fault code.
var severityPenalty = map[dtc.Severity]int{
	dtc.SeverityUnknown:  5,
	dtc.SeverityLow:      5,
	dtc.SeverityMedium:   10,
	dtc.SeverityHigh:     20,
	dtc.SeverityCritical: 35,
}

// generateReport folds everything collected so far into the health
// verdict and the recommendation list. It sends no commands, so it
// also runs when earlier steps were cut short.
func (s *Session) generateReport() {
	s.mu.Lock()
	defer s.mu.Unlock()

	score := 100
	for sev, n := range s.result.DTCs.BySeverity {
		score -= severityPenalty[sev] * n
	}
	for _, ecu := range s.result.ECUs {
		if ecu.Status == ECUNotResponding || ecu.Status == ECUError {
			score -= 5
		}
	}
	for _, res := range s.result.Sensors {
		switch res.Verdict {
		case sensors.Warning:
			score -= 3
		case sensors.Fail:
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}

	s.result.Health = Health{Score: score, Verdict: healthVerdict(score)}

	if n := s.result.DTCs.BySeverity[dtc.SeverityCritical]; n > 0 {
		s.result.Recommendations = append(s.result.Recommendations,
			fmt.Sprintf("%d critical fault code(s) stored, do not drive before repair", n))
	}
	if n := s.result.DTCs.BySeverity[dtc.SeverityHigh]; n > 0 {
		s.result.Recommendations = append(s.result.Recommendations,
			fmt.Sprintf("%d high severity fault code(s) stored, service soon", n))
	}
	if len(s.result.DTCs.Codes) == 0 && score >= 90 {
		s.result.Recommendations = append(s.result.Recommendations, "no faults stored, no action needed")
	}
}

func healthVerdict(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 75:
		return "good"
	case score >= 50:
		return "degraded"
	case score >= 25:
		return "poor"
	}
	return "critical"
}
