package dtc

import "strings"

// Category is the vehicle subsystem encoded in a fault code's first
// letter.
type Category byte

const (
	Powertrain Category = 'P'
	Chassis    Category = 'C'
	Body       Category = 'B'
	Network    Category = 'U'
)

func (c Category) String() string {
	switch c {
	case Powertrain:
		return "Powertrain"
	case Chassis:
		return "Chassis"
	case Body:
		return "Body"
	case Network:
		return "Network"
	}
	return "Unknown"
}

// Origin is the retrieval service a code came from.
type Origin int

const (
	Current Origin = iota
	Pending
	Permanent
)

func (o Origin) String() string {
	switch o {
	case Current:
		return "current"
	case Pending:
		return "pending"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

// Severity is assigned by the code database, not derived from the code
// itself.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// FreezeFrame is a snapshot of selected parameters captured when the
// fault was recorded. Fields are nil when the frame could not be
// decoded.
type FreezeFrame struct {
	Frame   int
	RPM     *float64
	Speed   *float64
	Coolant *float64
}

// DTC is one decoded fault code. Immutable once created.
type DTC struct {
	Code        string
	Category    Category
	Origin      Origin
	ECU         string
	Description string
	Severity    Severity
	FreezeFrame *FreezeFrame
}

func (d DTC) String() string {
	return d.Code
}

// New builds a DTC from its five character code, looking description
// and severity up in db. A nil db yields SeverityUnknown.
func New(code string, origin Origin, ecu string, db Database) DTC {
	d := DTC{
		Code:     code,
		Category: Category(code[0]),
		Origin:   origin,
		ECU:      ecu,
		Severity: SeverityUnknown,
	}
	if db != nil {
		if info, ok := db.Lookup(code); ok {
			d.Description = info.Description
			d.Severity = info.Severity
		}
	}
	return d
}

// Info is what the code database knows about a fault code.
type Info struct {
	Description string
	Severity    Severity
}

// Database maps a fault code to its description and severity. It is
// consumed read-only; the canonical implementation lives outside this
// module.
type Database interface {
	Lookup(code string) (Info, bool)
}

// MapDatabase is a Database backed by a plain map, used as the
// built-in fallback and in tests.
type MapDatabase map[string]Info

func (m MapDatabase) Lookup(code string) (Info, bool) {
	info, ok := m[strings.ToUpper(code)]
	return info, ok
}

// BuiltIn covers the most common generic codes so that a session run
// without an external database still produces readable results.
func BuiltIn() MapDatabase {
	return MapDatabase{
		"P0101": {Description: "Mass Air Flow Circuit Range/Performance", Severity: SeverityMedium},
		"P0171": {Description: "System Too Lean (Bank 1)", Severity: SeverityMedium},
		"P0172": {Description: "System Too Rich (Bank 1)", Severity: SeverityMedium},
		"P0300": {Description: "Random/Multiple Cylinder Misfire Detected", Severity: SeverityHigh},
		"P0301": {Description: "Cylinder 1 Misfire Detected", Severity: SeverityHigh},
		"P0302": {Description: "Cylinder 2 Misfire Detected", Severity: SeverityHigh},
		"P0420": {Description: "Catalyst System Efficiency Below Threshold", Severity: SeverityMedium},
		"P0440": {Description: "Evaporative Emission Control System Malfunction", Severity: SeverityLow},
		"P0500": {Description: "Vehicle Speed Sensor Malfunction", Severity: SeverityMedium},
		"P0505": {Description: "Idle Control System Malfunction", Severity: SeverityLow},
		"U0100": {Description: "Lost Communication With ECM/PCM", Severity: SeverityCritical},
		"U0121": {Description: "Lost Communication With ABS Module", Severity: SeverityHigh},
		"B1342": {Description: "ECU Defective", Severity: SeverityHigh},
		"C1A15": {Description: "TPMS System Malfunction", Severity: SeverityLow},
	}
}
