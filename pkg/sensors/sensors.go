// Package sensors validates aggregated measurements against declared
// operating ranges. Validators are pure functions of the collected
// measurements.
package sensors

import (
	"fmt"
	"time"

	"github.com/obddiag/obdscan/pkg/obd"
)

// Verdict of one sensor test.
type Verdict int

const (
	Pass Verdict = iota
	Warning
	Fail
	NotAvailable
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Warning:
		return "warning"
	case Fail:
		return "fail"
	case NotAvailable:
		return "not available"
	}
	return "unknown"
}

// Thresholds are the numeric bounds that drove a verdict. The fail
// band is the absolute plausibility range, the warn band the normal
// operating range inside it.
type Thresholds struct {
	FailLow  float64
	FailHigh float64
	WarnLow  float64
	WarnHigh float64
}

// Result of running one sensor test.
type Result struct {
	Sensor     string
	Verdict    Verdict
	Message    string
	Measured   float64
	Unit       string
	Thresholds Thresholds
}

// ValidateFunc inspects the measurements collected for a test and
// returns the verdict with the thresholds used. measurements holds one
// value per successfully decoded query, in query order.
type ValidateFunc func(measurements []float64) Result

// Test declares one sensor test: the PIDs to query, the validator to
// apply, and a per-test command timeout.
type Test struct {
	Name     string
	PIDs     []obd.Definition
	Validate ValidateFunc
	Timeout  time.Duration
}

// Range builds a ValidateFunc checking the mean of the measurements
// against a fail band and a tighter warn band.
func Range(sensor, unit string, th Thresholds) ValidateFunc {
	return func(measurements []float64) Result {
		r := Result{Sensor: sensor, Unit: unit, Thresholds: th}
		if len(measurements) == 0 {
			r.Verdict = NotAvailable
			r.Message = "no readings collected"
			return r
		}

		var sum float64
		for _, m := range measurements {
			sum += m
		}
		r.Measured = sum / float64(len(measurements))

		switch {
		case r.Measured < th.FailLow || r.Measured > th.FailHigh:
			r.Verdict = Fail
			r.Message = fmt.Sprintf("%s %.1f %s outside plausible range [%.0f, %.0f]",
				sensor, r.Measured, unit, th.FailLow, th.FailHigh)
		case r.Measured < th.WarnLow || r.Measured > th.WarnHigh:
			r.Verdict = Warning
			r.Message = fmt.Sprintf("%s %.1f %s outside operating band [%.0f, %.0f]",
				sensor, r.Measured, unit, th.WarnLow, th.WarnHigh)
		default:
			r.Verdict = Pass
			r.Message = fmt.Sprintf("%s %.1f %s within operating band", sensor, r.Measured, unit)
		}
		return r
	}
}

// Spread builds a ValidateFunc checking that two measurements agree
// within maxDelta, for consistency checks like MAP vs barometric
// pressure at idle.
func Spread(sensor, unit string, maxDelta, warnDelta float64) ValidateFunc {
	return func(measurements []float64) Result {
		r := Result{
			Sensor: sensor,
			Unit:   unit,
			Thresholds: Thresholds{
				FailLow: -maxDelta, FailHigh: maxDelta,
				WarnLow: -warnDelta, WarnHigh: warnDelta,
			},
		}
		if len(measurements) < 2 {
			r.Verdict = NotAvailable
			r.Message = "needs two readings"
			return r
		}
		delta := measurements[0] - measurements[1]
		r.Measured = delta
		switch {
		case delta < -maxDelta || delta > maxDelta:
			r.Verdict = Fail
			r.Message = fmt.Sprintf("%s delta %.1f %s exceeds %.0f", sensor, delta, unit, maxDelta)
		case delta < -warnDelta || delta > warnDelta:
			r.Verdict = Warning
			r.Message = fmt.Sprintf("%s delta %.1f %s above expected %.0f", sensor, delta, unit, warnDelta)
		default:
			r.Verdict = Pass
			r.Message = fmt.Sprintf("%s delta %.1f %s within tolerance", sensor, delta, unit)
		}
		return r
	}
}
