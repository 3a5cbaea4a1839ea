package obd

import "fmt"

var dtcCategories = [4]byte{'P', 'C', 'B', 'U'}

// DecodeDTC turns a raw two byte fault code into its five character
// form. The top two bits of the first byte select the category letter
// (00 P, 01 C, 10 B, 11 U), bits 4-5 give the first digit and the
// remaining three nibbles the last three hex digits.
//
// 0x01 0x43 -> "P0143", 0x82 0x34 -> "B0234"
func DecodeDTC(hi, lo byte) string {
	return fmt.Sprintf("%c%d%X%X%X",
		dtcCategories[hi>>6],
		(hi>>4)&0x03,
		hi&0x0F,
		lo>>4,
		lo&0x0F,
	)
}

// ParseDTCPayload extracts fault codes from a DTC service response
// (services 03, 07 and 0A). On CAN the positive response byte is
// followed by a count byte and then two byte code pairs; zero codes
// are padding and are discarded.
func ParseDTCPayload(raw string, service byte) []string {
	data := tokens(raw)
	want := service + 0x40

	start := -1
	for i, b := range data {
		if b == want {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(data) {
		return nil
	}

	count := int(data[start])
	pairs := data[start+1:]

	var codes []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == 0 && pairs[i+1] == 0 {
			continue
		}
		codes = append(codes, DecodeDTC(pairs[i], pairs[i+1]))
		if count > 0 && len(codes) >= count {
			break
		}
	}
	return codes
}
