package classify

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// TypeUnknown is assigned when the first topic segment cannot be decoded.
// Events classified as unknown are still recorded for audit.
const TypeUnknown = "Unknown"

// Classification is the semantic reading of one event envelope.
//
// Topic segments are positional: the first names the event type, the second
// carries the correlated claim id, the third a status token. Any segment that
// is missing or undecodable degrades to its zero value; classification never
// fails outright.
type Classification struct {
	EventType string
	ClaimID   string
	Status    string
	Attrs     map[string]any
}

// Classify decodes an event's topic segments and value payload.
func Classify(topics []string, value string, inSuccessfulCall bool) Classification {
	cls := Classification{
		EventType: TypeUnknown,
		Attrs: map[string]any{
			"topics":                   topics,
			"value":                    value,
			"inSuccessfulContractCall": inSuccessfulCall,
		},
	}

	if name, ok := decodeSegment(topics, 0); ok {
		cls.EventType = name
	}
	if cls.EventType == TypeUnknown {
		// No claim correlation without a recognizable event type.
		return cls
	}

	if claimID, ok := decodeSegment(topics, 1); ok {
		cls.ClaimID = claimID
	}
	if status, ok := decodeSegment(topics, 2); ok {
		cls.Status = status
		cls.Attrs["status"] = status
	}

	return cls
}

// decodeSegment decodes topics[i] as text, trimming XDR padding. Binary
// bytes are sanitized away rather than rejected; a segment is undecodable
// only when it is absent, not base64, or empty after sanitizing.
func decodeSegment(topics []string, i int) (string, bool) {
	if i >= len(topics) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(topics[i])
	if err != nil {
		return "", false
	}
	s := strings.Map(dropControl, string(raw))
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// dropControl removes NUL padding and XDR framing bytes around the symbol text.
func dropControl(r rune) rune {
	if r < 0x20 || r == utf8.RuneError {
		return -1
	}
	return r
}
