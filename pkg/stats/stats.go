// Package stats aggregates live-data samples collected over a polling
// run into per-parameter statistics.
package stats

import (
	"math"
	"time"
)

// Sample is one decoded measurement for one parameter.
type Sample struct {
	Name  string
	Value float64
	Unit  string
	Time  time.Time
}

// Statistics summarize all samples collected for one parameter during
// a run. Stability is 0..100; 100 means the value never moved.
type Statistics struct {
	Name      string
	Unit      string
	Count     int
	Mean      float64
	Min       float64
	Max       float64
	StdDev    float64
	Stability float64
	Derived   bool
}

type series struct {
	unit   string
	values []float64
}

// Aggregator collects samples across polling cycles. Not safe for
// concurrent use; the session worker is the only writer.
type Aggregator struct {
	series map[string]*series
	order  []string
}

func NewAggregator() *Aggregator {
	return &Aggregator{series: make(map[string]*series)}
}

// Add records a sample. Failed decodes are simply never added.
func (a *Aggregator) Add(s Sample) {
	sr, ok := a.series[s.Name]
	if !ok {
		sr = &series{unit: s.Unit}
		a.series[s.Name] = sr
		a.order = append(a.order, s.Name)
	}
	sr.values = append(sr.values, s.Value)
}

// Len returns the number of parameters with at least one sample.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Mean returns the current mean for a parameter, false if no samples
// were collected for it.
func (a *Aggregator) Mean(name string) (float64, bool) {
	sr, ok := a.series[name]
	if !ok || len(sr.values) == 0 {
		return 0, false
	}
	return mean(sr.values), true
}

// Compute produces statistics for every parameter, in first-seen
// order.
func (a *Aggregator) Compute() []Statistics {
	out := make([]Statistics, 0, len(a.order))
	for _, name := range a.order {
		sr := a.series[name]
		out = append(out, compute(name, sr.unit, sr.values))
	}
	return out
}

func compute(name, unit string, values []float64) Statistics {
	st := Statistics{Name: name, Unit: unit, Count: len(values)}
	if len(values) == 0 {
		return st
	}

	st.Min = values[0]
	st.Max = values[0]
	for _, v := range values {
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = mean(values)

	// Population standard deviation, zero below two samples.
	if len(values) >= 2 {
		var sum float64
		for _, v := range values {
			d := v - st.Mean
			sum += d * d
		}
		st.StdDev = math.Sqrt(sum / float64(len(values)))
	}

	st.Stability = stability(st.Mean, st.StdDev)
	return st
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stability maps the coefficient of variation onto 0..100. A zero mean
// with any spread counts as fully unstable (cv 100%).
func stability(mean, stddev float64) float64 {
	var cv float64
	if mean == 0 {
		if stddev == 0 {
			return 100
		}
		cv = 100
	} else {
		cv = 100 * stddev / math.Abs(mean)
	}
	return math.Max(0, 100-cv)
}
