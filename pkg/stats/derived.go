package stats

// Derived parameters are presentation aids computed from aggregated
// means with fixed empirical formulas. They are estimates, not
// measured quantities, and carry Derived: true so consumers can tell
// them apart.

const (
	stoichRatio     = 14.7   // gasoline stoichiometric air/fuel ratio
	gasolineDensity = 750.0  // g/l
	wattsPerAirGram = 1180.0 // rough brake power per g/s of airflow at lambda 1
)

// Derive appends the derived parameters that can be computed from the
// aggregated means. Missing inputs just mean the derived value is
// skipped.
func Derive(a *Aggregator, results []Statistics) []Statistics {
	maf, hasMAF := a.Mean("maf_rate")
	rpm, hasRPM := a.Mean("engine_rpm")
	load, hasLoad := a.Mean("engine_load")

	if hasMAF {
		// fuel mass flow = air mass flow / stoich ratio, converted to l/h
		fuel := maf / stoichRatio * 3600 / gasolineDensity
		results = append(results, constant("fuel_consumption_estimate", "l/h", fuel))

		power := maf * wattsPerAirGram / 1000
		results = append(results, constant("engine_power_estimate", "kW", power))
	}

	if hasRPM && hasLoad && rpm > 0 {
		// crude volumetric efficiency proxy: load relative to the load
		// expected at this rpm fraction of a 6000 rpm ceiling
		expected := rpm / 6000 * 100
		eff := 100.0
		if expected > 0 {
			eff = clamp(load/expected*100, 0, 100)
		}
		results = append(results, constant("combustion_efficiency_estimate", "%", eff))
	}

	return results
}

func constant(name, unit string, v float64) Statistics {
	return Statistics{
		Name:      name,
		Unit:      unit,
		Count:     1,
		Mean:      v,
		Min:       v,
		Max:       v,
		Stability: 100,
		Derived:   true,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
