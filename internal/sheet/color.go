package sheet

import (
	"strconv"
	"strings"
)

// Group is the semantic column group implied by a header cell's fill color.
type Group string

// Column groups.
const (
	GroupNone    Group = ""
	GroupCompany Group = "company"
	GroupDeal    Group = "deal"
	GroupContact Group = "contact"
)

// Color thresholds. Near-black is checked first, so dark grey headers count
// as contact columns rather than company columns.
const (
	nearBlackMax     = 50
	lowSaturationMax = 20
	greenDominance   = 30
)

// RGB is an 8-bit color.
type RGB struct{ R, G, B int }

// ParseColor parses "RRGGBB", "AARRGGBB" or either with a leading "#".
func ParseColor(hex string) (RGB, bool) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	switch len(hex) {
	case 8:
		hex = hex[2:]
	case 6:
	default:
		return RGB{}, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, false
	}
	return RGB{R: int(v >> 16 & 0xFF), G: int(v >> 8 & 0xFF), B: int(v & 0xFF)}, true
}

// ClassifyFill maps a fill color to a column group.
func ClassifyFill(fill string) Group {
	c, ok := ParseColor(fill)
	if !ok {
		return GroupNone
	}
	return c.Group()
}

// Group classifies the color.
func (c RGB) Group() Group {
	hi := max(c.R, c.G, c.B)
	lo := min(c.R, c.G, c.B)

	switch {
	case hi < nearBlackMax:
		return GroupContact
	case hi-lo < lowSaturationMax:
		return GroupCompany
	case c.G-c.R > greenDominance && c.G-c.B > greenDominance:
		return GroupDeal
	default:
		return GroupNone
	}
}
