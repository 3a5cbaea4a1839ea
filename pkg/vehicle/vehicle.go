// Package vehicle supplies per-model diagnostic metadata: the ordered
// ECU address list and the bus protocol to select. It is consumed
// read-only by the session.
package vehicle

import "strings"

// ECUAddress names one control unit on the diagnostic bus.
type ECUAddress struct {
	Name string
	Addr byte
}

// Model describes how to talk to one vehicle model. Protocol is an
// adapter protocol code ("0" for auto, "1".."C" for explicit).
type Model struct {
	Name     string
	Protocol string
	ECUs     []ECUAddress
}

var models = []Model{
	{
		Name:     "generic",
		Protocol: "0",
		ECUs: []ECUAddress{
			{Name: "Engine Control Module", Addr: 0x10},
			{Name: "Transmission Control Module", Addr: 0x18},
			{Name: "ABS Control Module", Addr: 0x28},
			{Name: "Body Control Module", Addr: 0x40},
			{Name: "Instrument Cluster", Addr: 0x60},
		},
	},
	{
		Name:     "generic-can",
		Protocol: "6",
		ECUs: []ECUAddress{
			{Name: "Engine Control Module", Addr: 0x10},
			{Name: "Transmission Control Module", Addr: 0x18},
			{Name: "ABS Control Module", Addr: 0x28},
		},
	},
	{
		Name:     "engine-only",
		Protocol: "0",
		ECUs: []ECUAddress{
			{Name: "Engine Control Module", Addr: 0x10},
		},
	},
}

// Lookup returns the model with the given name.
func Lookup(name string) (Model, bool) {
	for _, m := range models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Model{}, false
}

// Generic is the fallback model used when no model is configured.
func Generic() Model {
	m, _ := Lookup("generic")
	return m
}

// Names lists the known model names.
func Names() []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.Name)
	}
	return out
}
