// Package types provides shared type definitions used across the DDA harness packages.
// This package exists to break import cycles between encoder, tactile, decoder and dda.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
)

// =============================================================================
// ANALYSIS REQUEST
// =============================================================================

// InputFormat is the container format indicator passed to the DDA binary.
type InputFormat string

const (
	// FormatEDF marks European Data Format input (default).
	FormatEDF InputFormat = "EDF"
	// FormatASCII marks whitespace-separated sample tables.
	FormatASCII InputFormat = "ASCII"
)

// DelayRange is an inclusive range of integer delays.
type DelayRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Expand returns every integer in [Min, Max].
func (r DelayRange) Expand() []int {
	if r.Max < r.Min {
		return nil
	}
	out := make([]int, 0, r.Max-r.Min+1)
	for d := r.Min; d <= r.Max; d++ {
		out = append(out, d)
	}
	return out
}

// SampleBounds restricts analysis to [Start, End) sample indices.
type SampleBounds struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ChannelPair is an ordered pair of 0-based channel indices used by cross variants.
type ChannelPair [2]int

// AnalysisRequest describes one DDA invocation.
// Treat values as immutable once handed to the encoder; slices are copied on Build.
type AnalysisRequest struct {
	// InputPath is the signal file the binary reads.
	InputPath string `json:"input_path"`

	// InputFormat selects -EDF or -ASCII. Empty means EDF.
	InputFormat InputFormat `json:"input_format,omitempty"`

	// Channels are 0-based channel indices, in order.
	Channels []int `json:"channels"`

	// WindowLength and WindowStep are in samples.
	WindowLength int `json:"window_length"`
	WindowStep   int `json:"window_step"`

	// DelayRange takes precedence over Delays when both are set.
	DelayRange *DelayRange `json:"delay_range,omitempty"`
	Delays     []int       `json:"delays,omitempty"`

	// ModelTerms are the coefficient-selection indices for -MODEL.
	ModelTerms []int `json:"model_terms"`

	// Variants are enabled variant abbreviations (ST, CT, CD, DE, SY).
	Variants []string `json:"variants"`

	// Bounds optionally limits the sample range.
	Bounds *SampleBounds `json:"bounds,omitempty"`

	// CPUTime asks the binary to report CPU time.
	CPUTime bool `json:"cpu_time,omitempty"`

	// Cross-variant auxiliary parameters.
	CTWindowLength int           `json:"ct_window_length,omitempty"`
	CTWindowStep   int           `json:"ct_window_step,omitempty"`
	CTPairs        []ChannelPair `json:"ct_pairs,omitempty"`
	CDPairs        []ChannelPair `json:"cd_pairs,omitempty"`
}

// DelayValues returns the delay list the TAU block emits.
func (r AnalysisRequest) DelayValues() []int {
	if r.DelayRange != nil {
		return r.DelayRange.Expand()
	}
	out := make([]int, len(r.Delays))
	copy(out, r.Delays)
	return out
}

// Format returns the effective input format.
func (r AnalysisRequest) Format() InputFormat {
	if r.InputFormat == "" {
		return FormatEDF
	}
	return r.InputFormat
}

// Validate checks required fields and structural invariants.
// Missing fields wrap ErrMissingParameter; structural violations wrap ErrInvalidRequest.
func (r AnalysisRequest) Validate() error {
	if r.InputPath == "" {
		return missing("input path")
	}
	if len(r.Channels) == 0 {
		return missing("channels")
	}
	if r.WindowLength <= 0 {
		return missing("window length")
	}
	if r.WindowStep <= 0 {
		return missing("window step")
	}
	if r.DelayRange == nil && len(r.Delays) == 0 {
		return missing("delays")
	}
	if len(r.Variants) == 0 {
		return missing("variants")
	}

	for _, ch := range r.Channels {
		if ch < 0 {
			return fmt.Errorf("%w: negative channel index %d", ErrInvalidRequest, ch)
		}
	}
	if r.DelayRange != nil && r.DelayRange.Max < r.DelayRange.Min {
		return fmt.Errorf("%w: delay range (%d,%d) is inverted", ErrInvalidRequest, r.DelayRange.Min, r.DelayRange.Max)
	}
	if r.Bounds != nil {
		if r.Bounds.Start < 0 || r.Bounds.Start >= r.Bounds.End {
			return fmt.Errorf("%w: bounds require 0 <= start < end, got (%d,%d)", ErrInvalidRequest, r.Bounds.Start, r.Bounds.End)
		}
	}
	switch r.Format() {
	case FormatEDF, FormatASCII:
	default:
		return fmt.Errorf("%w: unknown input format %q", ErrInvalidRequest, r.InputFormat)
	}
	for _, pairs := range [][]ChannelPair{r.CTPairs, r.CDPairs} {
		for _, p := range pairs {
			if p[0] < 0 || p[1] < 0 {
				return fmt.Errorf("%w: negative channel in pair %v", ErrInvalidRequest, p)
			}
		}
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameter, field)
}
