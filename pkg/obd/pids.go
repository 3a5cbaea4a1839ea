package obd

// Numeric kinds for PID payload decoding.
type Kind int

const (
	KindU8 Kind = iota
	KindU16
	KindS8 // two's complement with 128 bias
	KindS16
	KindBitmask
	KindBool
)

// Group is the reporting subsystem a PID belongs to. It has no effect
// on decoding.
type Group string

const (
	GroupEngine    Group = "engine"
	GroupFuel      Group = "fuel"
	GroupEmissions Group = "emissions"
	GroupStatus    Group = "status"
)

// Definition describes one supported PID: how to request it and how to
// turn the payload bytes into a value.
type Definition struct {
	Service byte
	PID     byte
	Name    string
	Unit    string
	Min     float64
	Max     float64
	Length  int // payload bytes
	Scale   float64
	Offset  float64
	Kind    Kind
	Group   Group
}

var Definitions = []Definition{
	{Service: 0x01, PID: 0x04, Name: "engine_load", Unit: "%", Min: 0, Max: 100, Length: 1, Scale: 100.0 / 255.0, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x05, Name: "coolant_temperature", Unit: "°C", Min: -40, Max: 215, Length: 1, Scale: 1, Offset: -40, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x06, Name: "short_term_fuel_trim_1", Unit: "%", Min: -100, Max: 99.2, Length: 1, Scale: 100.0 / 128.0, Kind: KindS8, Group: GroupFuel},
	{Service: 0x01, PID: 0x07, Name: "long_term_fuel_trim_1", Unit: "%", Min: -100, Max: 99.2, Length: 1, Scale: 100.0 / 128.0, Kind: KindS8, Group: GroupFuel},
	{Service: 0x01, PID: 0x0A, Name: "fuel_pressure", Unit: "kPa", Min: 0, Max: 765, Length: 1, Scale: 3, Kind: KindU8, Group: GroupFuel},
	{Service: 0x01, PID: 0x0B, Name: "intake_manifold_pressure", Unit: "kPa", Min: 0, Max: 255, Length: 1, Scale: 1, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x0C, Name: "engine_rpm", Unit: "rpm", Min: 0, Max: 16383.75, Length: 2, Scale: 0.25, Kind: KindU16, Group: GroupEngine},
	{Service: 0x01, PID: 0x0D, Name: "vehicle_speed", Unit: "km/h", Min: 0, Max: 255, Length: 1, Scale: 1, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x0E, Name: "timing_advance", Unit: "°", Min: -64, Max: 63.5, Length: 1, Scale: 0.5, Kind: KindS8, Group: GroupEngine},
	{Service: 0x01, PID: 0x0F, Name: "intake_air_temperature", Unit: "°C", Min: -40, Max: 215, Length: 1, Scale: 1, Offset: -40, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x10, Name: "maf_rate", Unit: "g/s", Min: 0, Max: 655.35, Length: 2, Scale: 0.01, Kind: KindU16, Group: GroupEngine},
	{Service: 0x01, PID: 0x11, Name: "throttle_position", Unit: "%", Min: 0, Max: 100, Length: 1, Scale: 100.0 / 255.0, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x1F, Name: "run_time", Unit: "s", Min: 0, Max: 65535, Length: 2, Scale: 1, Kind: KindU16, Group: GroupStatus},
	{Service: 0x01, PID: 0x21, Name: "distance_with_mil", Unit: "km", Min: 0, Max: 65535, Length: 2, Scale: 1, Kind: KindU16, Group: GroupEmissions},
	{Service: 0x01, PID: 0x2F, Name: "fuel_level", Unit: "%", Min: 0, Max: 100, Length: 1, Scale: 100.0 / 255.0, Kind: KindU8, Group: GroupFuel},
	{Service: 0x01, PID: 0x31, Name: "distance_since_clear", Unit: "km", Min: 0, Max: 65535, Length: 2, Scale: 1, Kind: KindU16, Group: GroupEmissions},
	{Service: 0x01, PID: 0x33, Name: "barometric_pressure", Unit: "kPa", Min: 0, Max: 255, Length: 1, Scale: 1, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x42, Name: "control_module_voltage", Unit: "V", Min: 0, Max: 65.535, Length: 2, Scale: 0.001, Kind: KindU16, Group: GroupStatus},
	{Service: 0x01, PID: 0x46, Name: "ambient_temperature", Unit: "°C", Min: -40, Max: 215, Length: 1, Scale: 1, Offset: -40, Kind: KindU8, Group: GroupStatus},
	{Service: 0x01, PID: 0x5C, Name: "oil_temperature", Unit: "°C", Min: -40, Max: 210, Length: 1, Scale: 1, Offset: -40, Kind: KindU8, Group: GroupEngine},
	{Service: 0x01, PID: 0x01, Name: "monitor_status", Unit: "", Min: 0, Max: 0xFFFFFFFF, Length: 4, Scale: 1, Kind: KindBitmask, Group: GroupStatus},
}

// Lookup returns the definition for a service/PID pair.
func Lookup(service, pid byte) (Definition, bool) {
	for _, def := range Definitions {
		if def.Service == service && def.PID == pid {
			return def, true
		}
	}
	return Definition{}, false
}

// ByName returns the definition with the given name.
func ByName(name string) (Definition, bool) {
	for _, def := range Definitions {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// ByGroup returns all definitions in a reporting group, in table order.
func ByGroup(group Group) []Definition {
	var out []Definition
	for _, def := range Definitions {
		if def.Group == group {
			out = append(out, def)
		}
	}
	return out
}
