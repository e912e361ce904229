package config

import (
	"fmt"

	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// AnalysisConfig holds request defaults for the CLI.
type AnalysisConfig struct {
	InputFormat    string   `yaml:"input_format" json:"input_format,omitempty"`
	WindowLength   int      `yaml:"window_length" json:"window_length,omitempty"`
	WindowStep     int      `yaml:"window_step" json:"window_step,omitempty"`
	DelayMin       int      `yaml:"delay_min" json:"delay_min,omitempty"`
	DelayMax       int      `yaml:"delay_max" json:"delay_max,omitempty"`
	ModelTerms     []int    `yaml:"model_terms" json:"model_terms,omitempty"`
	Variants       []string `yaml:"variants" json:"variants,omitempty"`
	CTWindowLength int      `yaml:"ct_window_length" json:"ct_window_length,omitempty"`
	CTWindowStep   int      `yaml:"ct_window_step" json:"ct_window_step,omitempty"`
}

// StoreConfig configures run history.
type StoreConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DatabasePath  string `yaml:"database_path" json:"database_path,omitempty"`
	StoreMatrices bool   `yaml:"store_matrices" json:"store_matrices"`
}

// Validate checks the defaults are usable.
func (a AnalysisConfig) Validate() error {
	switch types.InputFormat(a.InputFormat) {
	case "", types.FormatEDF, types.FormatASCII:
	default:
		return fmt.Errorf("invalid analysis.input_format %q", a.InputFormat)
	}
	if a.WindowLength < 0 || a.WindowStep < 0 {
		return fmt.Errorf("analysis window length/step must not be negative")
	}
	if a.DelayMax < a.DelayMin {
		return fmt.Errorf("analysis delay range (%d,%d) is inverted", a.DelayMin, a.DelayMax)
	}
	if _, err := variants.Resolve(a.Variants); err != nil {
		return fmt.Errorf("analysis.variants: %w", err)
	}
	return nil
}

// Apply fills the zero-valued fields of req from the defaults.
func (a AnalysisConfig) Apply(req *types.AnalysisRequest) {
	if req.InputFormat == "" && a.InputFormat != "" {
		req.InputFormat = types.InputFormat(a.InputFormat)
	}
	if req.WindowLength == 0 {
		req.WindowLength = a.WindowLength
	}
	if req.WindowStep == 0 {
		req.WindowStep = a.WindowStep
	}
	if req.DelayRange == nil && len(req.Delays) == 0 && a.DelayMax > 0 {
		req.DelayRange = &types.DelayRange{Min: a.DelayMin, Max: a.DelayMax}
	}
	if len(req.ModelTerms) == 0 {
		req.ModelTerms = append([]int(nil), a.ModelTerms...)
	}
	if len(req.Variants) == 0 {
		req.Variants = append([]string(nil), a.Variants...)
	}
	if req.CTWindowLength == 0 {
		req.CTWindowLength = a.CTWindowLength
	}
	if req.CTWindowStep == 0 {
		req.CTWindowStep = a.CTWindowStep
	}
}
