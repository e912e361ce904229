package variants

import (
	"fmt"
	"strings"

	"ddaharness/internal/types"
)

// SelectMask is the fixed-width SELECT bit vector, slot i = bit i.
type SelectMask []bool

// EncodeMask sets one slot per enabled variant. The result is always MaskWidth long,
// also for an empty set; the reserved slot stays false.
func EncodeMask(enabled []string) (SelectMask, error) {
	mask := make(SelectMask, MaskWidth)
	for _, id := range enabled {
		d, ok := LookupByAbbreviation(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownVariant, id)
		}
		mask[d.Bit] = true
	}
	return mask, nil
}

// DecodeMask returns the enabled abbreviations in mask order.
// The reserved slot is ignored.
func DecodeMask(mask SelectMask) ([]string, error) {
	if len(mask) != MaskWidth {
		return nil, fmt.Errorf("%w: got %d slots, want %d", types.ErrMaskLength, len(mask), MaskWidth)
	}
	out := make([]string, 0, len(catalogue))
	for _, d := range catalogue {
		if mask[d.Bit] {
			out = append(out, d.Abbreviation)
		}
	}
	return out, nil
}

// Tokens renders the mask as "1"/"0" argv tokens.
func (m SelectMask) Tokens() []string {
	out := make([]string, len(m))
	for i, on := range m {
		if on {
			out[i] = "1"
		} else {
			out[i] = "0"
		}
	}
	return out
}

// String renders the mask as space-separated digits.
func (m SelectMask) String() string {
	return strings.Join(m.Tokens(), " ")
}

// ParseMask reads a mask written as digits, with or without separators ("1 0 0 0 0 0" or "100000").
func ParseMask(s string) (SelectMask, error) {
	var mask SelectMask
	for _, r := range s {
		switch r {
		case '1':
			mask = append(mask, true)
		case '0':
			mask = append(mask, false)
		case ' ', ',', '\t':
		default:
			return nil, fmt.Errorf("invalid mask character %q", r)
		}
	}
	if len(mask) != MaskWidth {
		return nil, fmt.Errorf("%w: got %d slots, want %d", types.ErrMaskLength, len(mask), MaskWidth)
	}
	return mask, nil
}
