// Package variants is the catalogue of DDA analysis variants and the SELECT mask codec.
//
// Each variant owns one slot of the fixed-width SELECT mask passed to the binary, one
// output-file suffix, and the column stride used to pull its coefficient of interest
// out of the interleaved output table. The catalogue is static.
package variants

import (
	"fmt"
	"strings"

	"ddaharness/internal/types"
)

// Descriptor describes one analysis variant.
type Descriptor struct {
	// Abbreviation is the stable id used in requests ("ST").
	Abbreviation string `json:"abbreviation"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Suffix is appended to the output stem with an underscore ("ST" -> <stem>_ST).
	Suffix string `json:"suffix"`

	// Stride is how many raw output columns belong to one channel or pair.
	Stride int `json:"stride"`

	// Bit is the variant's slot in the SELECT mask.
	Bit int `json:"bit"`

	// NeedsAuxiliary is set for cross variants that take channel pairs.
	NeedsAuxiliary bool `json:"needs_auxiliary"`
}

// MaskWidth is the number of SELECT slots the binary expects.
const MaskWidth = 6

// ReservedBit is permanently unused; it always encodes to 0.
const ReservedBit = 3

// Default is the variant whose output may also appear without a suffix.
const Default = "ST"

var catalogue = []Descriptor{
	{Abbreviation: "ST", Name: "Single Timeseries", Suffix: "ST", Stride: 4, Bit: 0},
	{Abbreviation: "CT", Name: "Cross Timeseries", Suffix: "CT", Stride: 4, Bit: 1, NeedsAuxiliary: true},
	{Abbreviation: "CD", Name: "Cross Dynamical", Suffix: "CD_DDA_ST", Stride: 2, Bit: 2, NeedsAuxiliary: true},
	{Abbreviation: "DE", Name: "Dynamical Ergodicity", Suffix: "DE", Stride: 1, Bit: 4},
	{Abbreviation: "SY", Name: "Synchronization", Suffix: "SY", Stride: 1, Bit: 5},
}

var (
	byAbbrev = make(map[string]Descriptor, len(catalogue))
	bySuffix = make(map[string]Descriptor, len(catalogue))
	byBit    = make(map[int]Descriptor, len(catalogue))
)

func init() {
	for _, d := range catalogue {
		if d.Bit < 0 || d.Bit >= MaskWidth || d.Bit == ReservedBit {
			panic(fmt.Sprintf("variants: %s has invalid bit %d", d.Abbreviation, d.Bit))
		}
		if _, dup := byBit[d.Bit]; dup {
			panic(fmt.Sprintf("variants: bit %d assigned twice", d.Bit))
		}
		byAbbrev[d.Abbreviation] = d
		bySuffix[d.Suffix] = d
		byBit[d.Bit] = d
	}
}

// All returns the descriptors in mask order.
func All() []Descriptor {
	out := make([]Descriptor, len(catalogue))
	copy(out, catalogue)
	return out
}

// Abbreviations returns every known abbreviation in mask order.
func Abbreviations() []string {
	out := make([]string, len(catalogue))
	for i, d := range catalogue {
		out[i] = d.Abbreviation
	}
	return out
}

// LookupByAbbreviation finds a variant by id. Matching is case-insensitive.
func LookupByAbbreviation(id string) (Descriptor, bool) {
	d, ok := byAbbrev[strings.ToUpper(strings.TrimSpace(id))]
	return d, ok
}

// LookupBySuffix finds a variant by output suffix. A leading underscore is ignored.
func LookupBySuffix(suffix string) (Descriptor, bool) {
	d, ok := bySuffix[strings.TrimPrefix(suffix, "_")]
	return d, ok
}

// Resolve maps abbreviations to descriptors in mask order, dropping duplicates.
func Resolve(ids []string) ([]Descriptor, error) {
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		d, ok := LookupByAbbreviation(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownVariant, id)
		}
		seen[d.Bit] = true
	}
	out := make([]Descriptor, 0, len(seen))
	for _, d := range catalogue {
		if seen[d.Bit] {
			out = append(out, d)
		}
	}
	return out, nil
}

// OutputName returns the file name a variant is written to for a given stem.
func (d Descriptor) OutputName(stem string) string {
	return stem + "_" + d.Suffix
}

// IsDefault reports whether d is the default variant.
func (d Descriptor) IsDefault() bool {
	return d.Abbreviation == Default
}
