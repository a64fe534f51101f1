package firmware

import (
	"strconv"
	"strings"
)

// acpiErrorPrefix is how acpi_call reports a failed method evaluation.
const acpiErrorPrefix = "Error:"

// Parse interprets raw probe output for a setting. It never fails: output
// that does not identify exactly one domain value yields Unknown(raw).
func Parse(s Setting, raw string) State {
	text := trimResponse(raw)
	if !s.Valid() {
		return Unknown(text, ReasonUnparseable)
	}

	var matched []Value
	switch s {
	case ConservationMode:
		// sysfs attribute: the whole response is the value
		for _, v := range s.Domain() {
			if text == strconv.Itoa(int(v)) {
				matched = append(matched, v)
			}
		}
	default:
		matched = matchHexTokens(s, text)
	}

	if len(matched) != 1 {
		return Unknown(text, ReasonUnparseable)
	}
	return State{known: true, value: matched[0]}
}

// matchHexTokens returns the distinct domain values named by whole 0x tokens,
// in ascending code order.
func matchHexTokens(s Setting, text string) []Value {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || strings.HasPrefix(tokens[0], acpiErrorPrefix) {
		return nil
	}

	seen := make(map[Value]bool)
	for _, tok := range tokens {
		code, ok := parseHexToken(tok)
		if !ok || code > 0xff {
			continue
		}
		if s.Contains(Value(code)) {
			seen[Value(code)] = true
		}
	}

	var matched []Value
	for _, v := range s.Domain() {
		if seen[v] {
			matched = append(matched, v)
		}
	}
	return matched
}

func parseHexToken(tok string) (uint64, bool) {
	tok = strings.Trim(tok, "\x00")
	if len(tok) < 3 || (tok[:2] != "0x" && tok[:2] != "0X") {
		return 0, false
	}
	code, err := strconv.ParseUint(tok[2:], 16, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}

func trimResponse(raw string) string {
	return strings.Trim(raw, " \t\r\n\x00")
}
