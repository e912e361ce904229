// Package encoder turns an AnalysisRequest into the DDA binary's argument list.
//
// The binary parses positional flag blocks, so the block order below is a
// correctness requirement. A misordered flag produces empty or garbage output
// with no error from the binary.
//
//	[launch prefix] binary
//	-DATA_FN <input> -OUT_FN <output> -EDF|-ASCII
//	-CH_list <1-based channels...>
//	-dm 4 -order 4 -nr_tau 2 -WL <len> -WS <step>
//	-SELECT <6 mask tokens>
//	-MODEL <terms...>
//	-TAU <delays...>
//	[-WL_CT <len> -WS_CT <step> [-CT_CH_list <pairs...>] [-CD_CH_list <pairs...>]]
//	[-StartEnd <start> <end>]
//	[-CPUtime]
package encoder

import (
	"fmt"
	"runtime"
	"strconv"

	"ddaharness/internal/logging"
	"ddaharness/internal/tactile"
	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// Fixed scalar flags. TauCount does not track the delay list length; the binary
// expects the literal value.
const (
	EmbeddingDimension = 4
	PolynomialOrder    = 4
	TauCount           = 2
)

// Defaults for the auxiliary cross-variant window.
const (
	DefaultCTWindowLength = 2
	DefaultCTWindowStep   = 2
)

// DefaultModelTerms is used when a request carries no model terms.
var DefaultModelTerms = []int{1, 2, 10}

// Options tunes how commands are built.
type Options struct {
	// Shell runs bootstrap-shim binaries on Unix. Empty means "sh".
	Shell string

	// GOOS selects launch behavior. Empty means runtime.GOOS.
	GOOS string

	// ModelTerms replaces DefaultModelTerms when a request has none.
	ModelTerms []int
}

// Encoder builds invocation commands.
type Encoder struct {
	opts Options
}

// New creates an encoder.
func New(opts Options) *Encoder {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	return &Encoder{opts: opts}
}

// Build detects the binary's format and assembles the full command.
// outputPath is the output stem the binary writes its variant files next to;
// each invocation must use a distinct one.
func Build(req types.AnalysisRequest, binaryPath, outputPath string) (types.InvocationCommand, error) {
	return New(Options{}).Build(req, binaryPath, outputPath)
}

// Build detects the binary's format and assembles the full command.
func (e *Encoder) Build(req types.AnalysisRequest, binaryPath, outputPath string) (types.InvocationCommand, error) {
	if err := checkRequired(req, binaryPath, outputPath); err != nil {
		return types.InvocationCommand{}, err
	}

	format, err := tactile.DetectFormat(binaryPath)
	if err != nil {
		return types.InvocationCommand{}, err
	}
	prefix := tactile.LaunchPrefix(format, e.opts.GOOS, e.opts.Shell)
	return e.Assemble(req, binaryPath, format, prefix, outputPath)
}

// Assemble builds the command for an already-classified binary. It does no I/O.
func (e *Encoder) Assemble(req types.AnalysisRequest, binaryPath string, format types.BinaryFormat, prefix []string, outputPath string) (types.InvocationCommand, error) {
	if err := checkRequired(req, binaryPath, outputPath); err != nil {
		return types.InvocationCommand{}, err
	}

	descriptors, err := variants.Resolve(req.Variants)
	if err != nil {
		return types.InvocationCommand{}, err
	}
	mask, err := variants.EncodeMask(req.Variants)
	if err != nil {
		return types.InvocationCommand{}, err
	}

	args := make([]string, 0, 64)

	// File flags
	args = append(args, "-DATA_FN", req.InputPath, "-OUT_FN", outputPath, "-"+string(req.Format()))

	// Channel block, 1-based
	args = append(args, "-CH_list")
	args = appendInts(args, shift(req.Channels)...)

	// Scalar flags
	args = append(args,
		"-dm", strconv.Itoa(EmbeddingDimension),
		"-order", strconv.Itoa(PolynomialOrder),
		"-nr_tau", strconv.Itoa(TauCount),
		"-WL", strconv.Itoa(req.WindowLength),
		"-WS", strconv.Itoa(req.WindowStep),
	)

	args = append(args, "-SELECT")
	args = append(args, mask.Tokens()...)

	args = append(args, "-MODEL")
	args = appendInts(args, e.modelTerms(req)...)

	args = append(args, "-TAU")
	args = appendInts(args, req.DelayValues()...)

	aux, err := auxiliaryBlock(req, descriptors)
	if err != nil {
		return types.InvocationCommand{}, err
	}
	args = append(args, aux...)

	if req.Bounds != nil {
		args = append(args, "-StartEnd",
			strconv.FormatInt(req.Bounds.Start, 10),
			strconv.FormatInt(req.Bounds.End, 10))
	}

	if req.CPUTime {
		args = append(args, "-CPUtime")
	}

	enabled := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		enabled = append(enabled, d.Abbreviation)
	}

	cmd := types.NewInvocationCommand(binaryPath, format, prefix, args, outputPath, enabled)
	logging.EncoderDebug("Built %s command with %d args: %s", format, len(args), cmd.String())
	return cmd, nil
}

func (e *Encoder) modelTerms(req types.AnalysisRequest) []int {
	switch {
	case len(req.ModelTerms) > 0:
		return req.ModelTerms
	case len(e.opts.ModelTerms) > 0:
		return e.opts.ModelTerms
	default:
		return DefaultModelTerms
	}
}

// checkRequired runs before any detection or launch.
func checkRequired(req types.AnalysisRequest, binaryPath, outputPath string) error {
	if binaryPath == "" {
		return fmt.Errorf("%w: binary path", types.ErrMissingParameter)
	}
	if outputPath == "" {
		return fmt.Errorf("%w: output path", types.ErrMissingParameter)
	}
	if err := req.Validate(); err != nil {
		logging.EncoderDebug("Rejected request: %v", err)
		return err
	}
	return nil
}

// auxiliaryBlock emits cross-variant parameters when CT or CD is enabled.
func auxiliaryBlock(req types.AnalysisRequest, descriptors []variants.Descriptor) ([]string, error) {
	var needsCT, needsCD bool
	for _, d := range descriptors {
		if !d.NeedsAuxiliary {
			continue
		}
		switch d.Abbreviation {
		case "CT":
			needsCT = true
		case "CD":
			needsCD = true
		}
	}
	if !needsCT && !needsCD {
		return nil, nil
	}

	wl, ws := req.CTWindowLength, req.CTWindowStep
	if wl <= 0 {
		wl = DefaultCTWindowLength
	}
	if ws <= 0 {
		ws = DefaultCTWindowStep
	}
	out := []string{"-WL_CT", strconv.Itoa(wl), "-WS_CT", strconv.Itoa(ws)}

	if needsCT {
		if len(req.CTPairs) == 0 {
			return nil, fmt.Errorf("%w: CT channel pairs", types.ErrMissingParameter)
		}
		out = append(out, "-CT_CH_list")
		out = appendInts(out, flattenPairs(req.CTPairs)...)
	}
	if needsCD {
		if len(req.CDPairs) == 0 {
			return nil, fmt.Errorf("%w: CD channel pairs", types.ErrMissingParameter)
		}
		out = append(out, "-CD_CH_list")
		out = appendInts(out, flattenPairs(req.CDPairs)...)
	}
	return out, nil
}

// shift converts 0-based indices to the binary's 1-based numbering.
func shift(indices []int) []int {
	out := make([]int, len(indices))
	for i, v := range indices {
		out[i] = v + 1
	}
	return out
}

func flattenPairs(pairs []types.ChannelPair) []int {
	out := make([]int, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p[0], p[1])
	}
	return shift(out)
}

func appendInts(dst []string, values ...int) []string {
	for _, v := range values {
		dst = append(dst, strconv.Itoa(v))
	}
	return dst
}
