package session

import (
	"time"

	"github.com/obddiag/obdscan/pkg/adapter"
	"github.com/obddiag/obdscan/pkg/dtc"
	"github.com/obddiag/obdscan/pkg/sensors"
	"github.com/obddiag/obdscan/pkg/stats"
)

// ECUStatus is the connectivity outcome of the scan step for one
// control unit.
type ECUStatus int

const (
	ECUConnected ECUStatus = iota
	ECUNotResponding
	ECUError
)

func (s ECUStatus) String() string {
	switch s {
	case ECUConnected:
		return "connected"
	case ECUNotResponding:
		return "not responding"
	case ECUError:
		return "error"
	}
	return "unknown"
}

// ECUResult describes one control unit found (or not) during the scan.
type ECUResult struct {
	Name           string
	Addr           byte
	Status         ECUStatus
	ResponseTime   time.Duration
	Identification string
}

// DTCResult accumulates the fault codes of all ECUs.
type DTCResult struct {
	Codes      []dtc.DTC
	BySeverity map[dtc.Severity]int
}

// LiveDataResult holds the per-parameter statistics of one polling
// run.
type LiveDataResult struct {
	Cycles     int
	Statistics []stats.Statistics
}

// ActuatorResult classifies the adapter's acknowledgement of one
// actuator command sequence.
type ActuatorResult struct {
	Name     string
	Success  bool
	Response string
}

// AdaptationResult records whether an adaptation ran and how it ended.
// Performed is false when a precondition was not met.
type AdaptationResult struct {
	Name      string
	Performed bool
	Success   bool
	Reason    string
}

// Health is the overall verdict derived from accumulated counts.
type Health struct {
	Score   int // 0..100
	Verdict string
}

// Result is the structured session document handed to report renderers
// and persistence. Owned by the worker until the session reaches a
// terminal state, read-only afterwards.
type Result struct {
	Vehicle       string
	Device        adapter.DeviceInfo
	SupplyVoltage string
	StartedAt     time.Time
	EndedAt       time.Time

	ECUs        []ECUResult
	DTCs        DTCResult
	LiveData    LiveDataResult
	Sensors     []sensors.Result
	Actuators   []ActuatorResult
	Adaptations []AdaptationResult

	Health          Health
	Recommendations []string
	Warnings        []string
	Errors          []string
}

func newResult(vehicleName string) *Result {
	return &Result{
		Vehicle:   vehicleName,
		StartedAt: time.Now(),
		DTCs: DTCResult{
			BySeverity: make(map[dtc.Severity]int),
		},
	}
}
