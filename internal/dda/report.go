package dda

import (
	"fmt"
	"strconv"

	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// Report is everything one analysis produced.
type Report struct {
	RunID   string                          `json:"run_id"`
	Request types.AnalysisRequest           `json:"request"`
	Command []string                        `json:"command"`
	Format  string                          `json:"binary_format"`
	Process *types.ProcessResult            `json:"process,omitempty"`
	Results map[string]*types.DecodedResult `json:"results"`

	// Warnings collects per-variant and process-level warnings.
	Warnings []string `json:"warnings,omitempty"`
}

// Variants returns the decoded variant abbreviations in mask order.
func (r *Report) Variants() []string {
	out := make([]string, 0, len(r.Results))
	for _, d := range variants.All() {
		if _, ok := r.Results[d.Abbreviation]; ok {
			out = append(out, d.Abbreviation)
		}
	}
	return out
}

func (r *Report) collectWarnings() {
	r.Warnings = nil
	if p := r.Process; p != nil {
		if p.ExitCode != 0 && p.ArtifactFound() {
			r.Warnings = append(r.Warnings, fmt.Sprintf("binary exited %d after writing output", p.ExitCode))
		}
		if p.Truncated {
			r.Warnings = append(r.Warnings, "captured process output was truncated")
		}
	}
	for _, abbrev := range r.Variants() {
		for _, w := range r.Results[abbrev].Warnings {
			r.Warnings = append(r.Warnings, abbrev+": "+w)
		}
	}
}

// Parameters echoes the request fields a result document carries.
type Parameters struct {
	InputPath    string              `json:"input_path"`
	Channels     []int               `json:"channels"`
	WindowLength int                 `json:"window_length"`
	WindowStep   int                 `json:"window_step"`
	Delays       []int               `json:"delays"`
	ModelTerms   []int               `json:"model_terms,omitempty"`
	Bounds       *types.SampleBounds `json:"bounds,omitempty"`
	Pairs        []types.ChannelPair `json:"pairs,omitempty"`
}

// Document is one variant's result in the shape downstream consumers store.
type Document struct {
	RunID        string      `json:"run_id"`
	Variant      string      `json:"variant"`
	VariantName  string      `json:"variant_name"`
	Matrix       [][]float64 `json:"matrix"`
	Shape        [2]int      `json:"shape"`
	ChannelNames []string    `json:"channel_names"`
	Parameters   Parameters  `json:"parameters"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// Document assembles the result document for one variant. channelNames are the
// recording's labels indexed by 0-based channel; nil yields generic names.
// Row labels follow the request's channels, or its pairs for cross variants.
func (r *Report) Document(variant string, channelNames []string) (*Document, error) {
	d, ok := variants.LookupByAbbreviation(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownVariant, variant)
	}
	res, ok := r.Results[d.Abbreviation]
	if !ok {
		return nil, fmt.Errorf("variant %s was not part of run %s", d.Abbreviation, r.RunID)
	}
	if !res.Found() {
		return nil, fmt.Errorf("%w: %s", types.ErrOutputNotFound, d.Abbreviation)
	}

	pairs := r.pairsFor(d.Abbreviation)
	doc := &Document{
		RunID:       r.RunID,
		Variant:     d.Abbreviation,
		VariantName: d.Name,
		Matrix:      res.Matrix,
		Shape:       [2]int{res.Rows(), res.Cols()},
		Parameters: Parameters{
			InputPath:    r.Request.InputPath,
			Channels:     append([]int(nil), r.Request.Channels...),
			WindowLength: r.Request.WindowLength,
			WindowStep:   r.Request.WindowStep,
			Delays:       r.Request.DelayValues(),
			ModelTerms:   append([]int(nil), r.Request.ModelTerms...),
			Bounds:       r.Request.Bounds,
			Pairs:        pairs,
		},
		Warnings: append([]string(nil), res.Warnings...),
	}

	var labels []string
	if d.NeedsAuxiliary {
		labels = make([]string, len(pairs))
		for i, p := range pairs {
			labels[i] = channelName(channelNames, p[0]) + "-" + channelName(channelNames, p[1])
		}
	} else {
		labels = make([]string, len(r.Request.Channels))
		for i, ch := range r.Request.Channels {
			labels[i] = channelName(channelNames, ch)
		}
	}
	if len(labels) != doc.Shape[0] {
		doc.Warnings = append(doc.Warnings,
			fmt.Sprintf("%d row(s) but %d label(s); using row indices", doc.Shape[0], len(labels)))
		labels = make([]string, doc.Shape[0])
		for i := range labels {
			labels[i] = "row" + strconv.Itoa(i)
		}
	}
	doc.ChannelNames = labels
	return doc, nil
}

// Documents assembles a document for every decoded variant, in mask order.
func (r *Report) Documents(channelNames []string) ([]*Document, error) {
	var docs []*Document
	for _, abbrev := range r.Variants() {
		if !r.Results[abbrev].Found() {
			continue
		}
		doc, err := r.Document(abbrev, channelNames)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Report) pairsFor(variant string) []types.ChannelPair {
	switch variant {
	case "CT":
		return append([]types.ChannelPair(nil), r.Request.CTPairs...)
	case "CD":
		return append([]types.ChannelPair(nil), r.Request.CDPairs...)
	default:
		return nil
	}
}

func channelName(names []string, idx int) string {
	if idx >= 0 && idx < len(names) && names[idx] != "" {
		return names[idx]
	}
	return "ch" + strconv.Itoa(idx)
}
