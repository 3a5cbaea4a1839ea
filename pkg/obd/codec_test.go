package obd

import (
	"fmt"
	"math"
	"testing"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		name    string
		service byte
		pid     []byte
		want    string
	}{
		{name: "rpm", service: 0x01, pid: []byte{0x0C}, want: "010C"},
		{name: "stored dtcs", service: 0x03, want: "03"},
		{name: "freeze frame", service: 0x02, pid: []byte{0x0C, 0x00}, want: "020C00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Command(tt.service, tt.pid...); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddressedCommand(t *testing.T) {
	if got := AddressedCommand(0x10, 0x01, 0x0C); got != "10010C" {
		t.Errorf("AddressedCommand() = %q, want %q", got, "10010C")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		pid      byte
		wantVal  float64
		wantFail bool
	}{
		{name: "rpm 750", raw: "41 0C 0B B8", pid: 0x0C, wantVal: 750},
		{name: "rpm with can header", raw: "7E8 04 41 0C 1A F0", pid: 0x0C, wantVal: 1724},
		{name: "speed", raw: "41 0D 32", pid: 0x0D, wantVal: 50},
		{name: "coolant", raw: "41 05 5A", pid: 0x05, wantVal: 50},
		{name: "fuel trim positive", raw: "41 06 99", pid: 0x06, wantVal: (153 - 128) * 100.0 / 128.0},
		{name: "fuel trim negative", raw: "41 06 60", pid: 0x06, wantVal: (96 - 128) * 100.0 / 128.0},
		{name: "truncated payload", raw: "41 0C 0B", pid: 0x0C, wantFail: true},
		{name: "wrong pid echoed", raw: "41 0D 0B B8", pid: 0x0C, wantFail: true},
		{name: "garbage", raw: "NO DATA", pid: 0x0C, wantFail: true},
		{name: "empty", raw: "", pid: 0x0C, wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := Lookup(0x01, tt.pid)
			if !ok {
				t.Fatalf("no definition for PID %02X", tt.pid)
			}
			v, ok := ParseResponse(tt.raw, def)
			if tt.wantFail {
				if ok {
					t.Fatalf("ParseResponse() decoded %v, want no value", v.Float)
				}
				return
			}
			if !ok {
				t.Fatalf("ParseResponse() returned no value for %q", tt.raw)
			}
			if math.Abs(v.Float-tt.wantVal) > 1e-9 {
				t.Errorf("ParseResponse() = %v, want %v", v.Float, tt.wantVal)
			}
			if v.Unit != def.Unit {
				t.Errorf("unit = %q, want %q", v.Unit, def.Unit)
			}
		})
	}
}

// Every definition must round-trip a value built from its own encoding
// within one scale step.
func TestParseResponseRoundTrip(t *testing.T) {
	for _, def := range Definitions {
		if def.Kind == KindBitmask || def.Kind == KindBool {
			continue
		}
		t.Run(def.Name, func(t *testing.T) {
			want := (def.Min + def.Max) / 2
			raw := buildResponse(def, want)
			v, ok := ParseResponse(raw, def)
			if !ok {
				t.Fatalf("no value from %q", raw)
			}
			if math.Abs(v.Float-want) > def.Scale {
				t.Errorf("round trip %q: got %v, want %v within %v", raw, v.Float, want, def.Scale)
			}
		})
	}
}

func buildResponse(def Definition, val float64) string {
	n := int64(math.Round((val - def.Offset) / def.Scale))
	if def.Kind == KindS8 {
		n += 128
	}
	out := fmt.Sprintf("%02X %02X", def.Service+0x40, def.PID)
	switch def.Length {
	case 1:
		out += fmt.Sprintf(" %02X", byte(n))
	case 2:
		out += fmt.Sprintf(" %02X %02X", byte(n>>8), byte(n))
	}
	return out
}

func TestParseResponseBoolLength(t *testing.T) {
	def := Definition{Service: 0x01, PID: 0x7F, Name: "flag", Length: 1, Scale: 1, Kind: KindBool}
	v, ok := ParseResponse("41 7F 01", def)
	if !ok || v.Float != 1 {
		t.Errorf("ParseResponse() = %v, %v, want 1, true", v.Float, ok)
	}

	// a zero declared length must yield no value, not a panic
	def.Length = 0
	if _, ok := ParseResponse("41 7F 01", def); ok {
		t.Error("decoded bool with zero declared length")
	}
}

func TestParseFreezeFrame(t *testing.T) {
	def, _ := Lookup(0x01, 0x0C)

	v, ok := ParseFreezeFrame("42 0C 00 0B B8", def, 0x00)
	if !ok {
		t.Fatal("no value from valid freeze frame")
	}
	if math.Abs(v.Float-750) > 1e-9 {
		t.Errorf("freeze frame rpm = %v, want 750", v.Float)
	}

	if _, ok := ParseFreezeFrame("42 0C 01 0B B8", def, 0x00); ok {
		t.Error("decoded frame 1 response as frame 0")
	}
	if _, ok := ParseFreezeFrame("42 0C 00", def, 0x00); ok {
		t.Error("decoded truncated freeze frame")
	}
	if _, ok := ParseFreezeFrame("NO DATA", def, 0x00); ok {
		t.Error("decoded garbage freeze frame")
	}
}

func TestParseSupported(t *testing.T) {
	// 0xBE1FA813: bits for PIDs 01,03..07,0C..11,13,15,1C,1F,20
	got := ParseSupported("41 00 BE 1F A8 13", 0x01, 0x00)
	want := []byte{0x01, 0x03, 0x04, 0x05, 0x06, 0x07, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11, 0x13, 0x15, 0x1C, 0x1F, 0x20}
	if len(got) != len(want) {
		t.Fatalf("ParseSupported() = %02X, want %02X", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("pid[%d] = %02X, want %02X", i, got[i], want[i])
		}
	}
}
