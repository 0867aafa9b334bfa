package ticket

import (
	"strings"
	"unicode"
)

// TakeAway is the destination printed for orders without a table.
const TakeAway = "TAKE-AWAY"

var destinationKeywords = []string{
	"table",
	"mesa",
	"takeaway",
	"take-away",
	"llevar",
	"counter",
	"barra",
	"web",
}

// DestinationLabel normalizes a stored table identifier for printing.
// Identifiers already naming a destination are kept verbatim.
func DestinationLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "S/N") {
		return TakeAway
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range destinationKeywords {
		if strings.Contains(lower, kw) {
			return trimmed
		}
	}
	return "TABLE " + trimmed
}

// FileName turns s into a job name safe for any filesystem.
func FileName(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_', r == '.':
			sb.WriteRune(r)
			dash = false
		default:
			if !dash && sb.Len() > 0 {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	name := strings.Trim(sb.String(), "-.")
	if name == "" {
		return "ticket"
	}
	return name
}
