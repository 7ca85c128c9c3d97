package nbexport

import (
	"fmt"
	"strings"
)

// Capability is a bit-set selecting which rendering backends are eligible
// for a document export. The enumeration is closed: each backend owns exactly
// one bit, fixed at compile time, and no identifier exists outside it.
type Capability uint8

const (
	// CapTeX gates the LaTeX toolchain backend.
	CapTeX Capability = 1 << iota
	// CapWebPDF gates the headless-Chromium print backend.
	CapWebPDF
	// CapQtPDF gates the Qt WebKit (wkhtmltopdf) backend.
	CapQtPDF
)

// CapNone is the empty mask; no backend is eligible.
const CapNone Capability = 0

// CapAll enables every known backend.
const CapAll = CapTeX | CapWebPDF | CapQtPDF

// capabilityOrder is the fixed fallback priority: most broadly compatible
// first, least portable last.
var capabilityOrder = []Capability{CapTeX, CapWebPDF, CapQtPDF}

var capabilityNames = map[Capability]string{
	CapTeX:    "tex",
	CapWebPDF: "webpdf",
	CapQtPDF:  "qtpdf",
}

// DefaultCapabilities returns the safe default mask: every backend considered
// portable. The Qt WebKit backend is excluded because its toolchain is the
// least commonly installed.
func DefaultCapabilities() Capability {
	return CapTeX | CapWebPDF
}

// Contains reports whether every bit in b is enabled in the mask. An empty b
// is never contained.
func (c Capability) Contains(b Capability) bool {
	return b != CapNone && c&b == b
}

// Union returns the mask with every bit from both operands.
func (c Capability) Union(b Capability) Capability {
	return c | b
}

// Intersect returns the bits enabled in both masks.
func (c Capability) Intersect(b Capability) Capability {
	return c & b
}

// IsZero reports whether no backend is enabled.
func (c Capability) IsZero() bool {
	return c == CapNone
}

func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	parts := make([]string, 0, len(capabilityOrder))
	for _, bit := range capabilityOrder {
		if c.Contains(bit) {
			parts = append(parts, capabilityNames[bit])
		}
	}
	if rest := c &^ CapAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// MarshalText encodes the mask in its backend-name form, the same shape
// String produces.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the backend-name form accepted by ParseCapability.
func (c *Capability) UnmarshalText(text []byte) error {
	mask, err := ParseCapability(string(text))
	if err != nil {
		return err
	}
	*c = mask
	return nil
}

// ParseCapability builds a mask from a list of backend names separated by
// commas or pipes. Unknown names are programming or configuration errors and
// are rejected here, at construction time, never inside the render loop.
func ParseCapability(s string) (Capability, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "none") {
		return CapNone, nil
	}
	if strings.EqualFold(trimmed, "all") {
		return CapAll, nil
	}
	if strings.EqualFold(trimmed, "default") {
		return DefaultCapabilities(), nil
	}

	mask := CapNone
	for _, part := range strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == '|'
	}) {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		bit, ok := capabilityForName(name)
		if !ok {
			return CapNone, NewError(KindValidation, fmt.Sprintf("unknown backend capability %q", name), nil)
		}
		mask |= bit
	}
	return mask, nil
}

// CapabilityName returns the canonical name for a single-bit capability.
func CapabilityName(c Capability) string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return c.String()
}

// CapabilityNames lists the mask's backend names in fallback priority order.
func CapabilityNames(mask Capability) []string {
	names := make([]string, 0, len(capabilityOrder))
	for _, bit := range capabilityOrder {
		if mask.Contains(bit) {
			names = append(names, capabilityNames[bit])
		}
	}
	return names
}

func capabilityForName(name string) (Capability, bool) {
	for bit, n := range capabilityNames {
		if n == name {
			return bit, true
		}
	}
	return CapNone, false
}
