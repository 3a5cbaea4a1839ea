package sensors

import (
	"time"

	"github.com/obddiag/obdscan/pkg/obd"
)

func def(name string) obd.Definition {
	d, _ := obd.ByName(name)
	return d
}

// DefaultTests is the built-in sensor test set. The session runs them
// in this order.
func DefaultTests() []Test {
	return []Test{
		{
			Name:    "coolant temperature sensor",
			PIDs:    []obd.Definition{def("coolant_temperature")},
			Timeout: 2 * time.Second,
			Validate: Range("coolant temperature", "°C", Thresholds{
				FailLow: -40, FailHigh: 150,
				WarnLow: 0, WarnHigh: 120,
			}),
		},
		{
			Name:    "intake air temperature sensor",
			PIDs:    []obd.Definition{def("intake_air_temperature")},
			Timeout: 2 * time.Second,
			Validate: Range("intake air temperature", "°C", Thresholds{
				FailLow: -40, FailHigh: 120,
				WarnLow: -20, WarnHigh: 80,
			}),
		},
		{
			Name:    "throttle position sensor",
			PIDs:    []obd.Definition{def("throttle_position")},
			Timeout: 2 * time.Second,
			Validate: Range("throttle position", "%", Thresholds{
				FailLow: 0, FailHigh: 100,
				WarnLow: 0, WarnHigh: 95,
			}),
		},
		{
			Name:    "manifold vs barometric pressure",
			PIDs:    []obd.Definition{def("intake_manifold_pressure"), def("barometric_pressure")},
			Timeout: 3 * time.Second,
			// at idle the manifold runs well below ambient; a MAP stuck
			// at baro reads delta ~0, a dead MAP reads a huge delta
			Validate: Spread("manifold pressure", "kPa", 90, 75),
		},
		{
			Name:    "control module voltage",
			PIDs:    []obd.Definition{def("control_module_voltage")},
			Timeout: 2 * time.Second,
			Validate: Range("control module voltage", "V", Thresholds{
				FailLow: 8, FailHigh: 16,
				WarnLow: 11.5, WarnHigh: 14.8,
			}),
		},
		{
			Name:    "short term fuel trim plausibility",
			PIDs:    []obd.Definition{def("short_term_fuel_trim_1")},
			Timeout: 2 * time.Second,
			Validate: Range("short term fuel trim", "%", Thresholds{
				FailLow: -50, FailHigh: 50,
				WarnLow: -15, WarnHigh: 15,
			}),
		},
	}
}
