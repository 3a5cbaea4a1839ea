package adapter

import "strings"

// Clean normalizes a raw adapter read: line endings become "\n", the
// prompt marker and any echo of the sent command are stripped, and the
// result is trimmed. Pure; applied to every read.
func Clean(raw, echo string, stripSpaces bool) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, ">", "")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if echo != "" && strings.EqualFold(line, echo) {
			continue
		}
		if stripSpaces {
			line = strings.ReplaceAll(line, " ", "")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
