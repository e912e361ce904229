package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/dda"
	"ddaharness/internal/edf"
	"ddaharness/internal/types"
)

var runFlags struct {
	inputs        []string
	ascii         bool
	channels      []int
	channelLabels []string
	variants      []string
	windowLength  int
	windowStep    int
	delayMin      int
	delayMax      int
	delays        []int
	modelTerms    []int
	startSec      float64
	endSec        float64
	ctPairs       []string
	cdPairs       []string
	cpuTime       bool
	out           string
}

// runCmd runs one analysis per input file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run DDA on one or more input files",
	Long: `Builds the DDA command line, runs the binary and decodes every
requested variant. Several --input files run as a batch, bounded by
execution.max_parallel_runs.

Examples:
  dda run -i patient1.edf --channels 0,1,2 --variants ST,DE
  dda run -i patient1.edf --labels Fp1,Fp2 --start 10 --end 70
  dda run -i a.edf -i b.edf --channels 0,1 --variants CT --ct-pairs 0-1`,
	RunE: runAnalyses,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVarP(&runFlags.inputs, "input", "i", nil, "Input file (repeatable)")
	f.BoolVar(&runFlags.ascii, "ascii", false, "Inputs are ASCII tables instead of EDF")
	f.IntSliceVar(&runFlags.channels, "channels", nil, "0-based channel indices")
	f.StringSliceVar(&runFlags.channelLabels, "labels", nil, "Channel labels, resolved through the EDF header")
	f.StringSliceVar(&runFlags.variants, "variants", nil, "Variants to compute (default from config)")
	f.IntVar(&runFlags.windowLength, "wl", 0, "Window length in samples")
	f.IntVar(&runFlags.windowStep, "ws", 0, "Window step in samples")
	f.IntVar(&runFlags.delayMin, "delay-min", 0, "First delay of an inclusive range")
	f.IntVar(&runFlags.delayMax, "delay-max", 0, "Last delay of an inclusive range")
	f.IntSliceVar(&runFlags.delays, "delays", nil, "Explicit delay list")
	f.IntSliceVar(&runFlags.modelTerms, "model", nil, "Model term indices")
	f.Float64Var(&runFlags.startSec, "start", 0, "Start time in seconds (EDF only)")
	f.Float64Var(&runFlags.endSec, "end", 0, "End time in seconds (EDF only, 0 = end of recording)")
	f.StringSliceVar(&runFlags.ctPairs, "ct-pairs", nil, "CT channel pairs, e.g. 0-1,2-3")
	f.StringSliceVar(&runFlags.cdPairs, "cd-pairs", nil, "CD channel pairs, e.g. 0-1")
	f.BoolVar(&runFlags.cpuTime, "cpu-time", false, "Ask the binary to report CPU time")
	f.StringVarP(&runFlags.out, "out", "o", "", "Write result documents as JSON to this file")
	_ = runCmd.MarkFlagRequired("input")
}

func runAnalyses(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	reqs := make([]types.AnalysisRequest, len(runFlags.inputs))
	names := make([][]string, len(runFlags.inputs))
	for i, input := range runFlags.inputs {
		req, labels, err := buildRequest(input)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		reqs[i], names[i] = req, labels
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	var rec dda.Recorder
	if st != nil {
		defer st.Close()
		rec = st
	}
	analyzer := dda.New(cfg, rec)

	var outcomes []dda.Outcome
	if len(reqs) == 1 {
		report, err := analyzer.Analyze(ctx, reqs[0])
		outcomes = []dda.Outcome{{Report: report, Err: err}}
	} else {
		outcomes, err = analyzer.AnalyzeBatch(ctx, reqs, 0)
		if err != nil {
			logger.Warn("Batch interrupted", zap.Error(err))
		}
	}

	var docs []*dda.Document
	failed := 0
	w := cmd.OutOrStdout()
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			logger.Error("Analysis failed", zap.String("input", reqs[i].InputPath), zap.Error(o.Err))
			if !jsonOutput {
				fmt.Fprintf(w, "%s %s: %v\n\n", styles.Error.Render("FAILED"), reqs[i].InputPath, o.Err)
			}
			continue
		}
		reportDocs, err := o.Report.Documents(names[i])
		if err != nil {
			return err
		}
		docs = append(docs, reportDocs...)
		if !jsonOutput {
			printReport(w, o.Report)
		}
	}

	if jsonOutput {
		if err := writeJSON(w, docs); err != nil {
			return err
		}
	}
	if runFlags.out != "" {
		f, err := os.Create(runFlags.out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", runFlags.out, err)
		}
		defer f.Close()
		if err := writeJSON(f, docs); err != nil {
			return err
		}
		logger.Info("Wrote result documents", zap.String("path", runFlags.out), zap.Int("documents", len(docs)))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(outcomes))
	}
	return nil
}

// buildRequest turns the run flags into a request for input. It returns the
// recording's channel labels when the input is a readable EDF file.
func buildRequest(input string) (types.AnalysisRequest, []string, error) {
	req := types.AnalysisRequest{
		InputPath:    input,
		Channels:     append([]int(nil), runFlags.channels...),
		WindowLength: runFlags.windowLength,
		WindowStep:   runFlags.windowStep,
		Delays:       append([]int(nil), runFlags.delays...),
		ModelTerms:   append([]int(nil), runFlags.modelTerms...),
		Variants:     append([]string(nil), runFlags.variants...),
		CPUTime:      runFlags.cpuTime,
	}
	if runFlags.ascii {
		req.InputFormat = types.FormatASCII
	}
	if runFlags.delayMin > 0 || runFlags.delayMax > 0 {
		// A single bound on the command line keeps the other from config.
		r := types.DelayRange{Min: cfg.Analysis.DelayMin, Max: cfg.Analysis.DelayMax}
		if runFlags.delayMin > 0 {
			r.Min = runFlags.delayMin
		}
		if runFlags.delayMax > 0 {
			r.Max = runFlags.delayMax
		}
		if r.Max < r.Min {
			return req, nil, fmt.Errorf("%w: delay range (%d,%d) is inverted", types.ErrInvalidRequest, r.Min, r.Max)
		}
		req.DelayRange = &r
	}

	var err error
	if req.CTPairs, err = parsePairs(runFlags.ctPairs); err != nil {
		return req, nil, err
	}
	if req.CDPairs, err = parsePairs(runFlags.cdPairs); err != nil {
		return req, nil, err
	}

	var labels []string
	needHeader := len(runFlags.channelLabels) > 0 || runFlags.startSec > 0 || runFlags.endSec > 0
	if !runFlags.ascii {
		header, herr := edf.ReadHeader(input)
		switch {
		case herr == nil:
			labels = header.Labels()
			if len(runFlags.channelLabels) > 0 {
				if req.Channels, err = header.ChannelIndices(runFlags.channelLabels); err != nil {
					return req, nil, err
				}
			}
			if runFlags.startSec > 0 || runFlags.endSec > 0 {
				ref := 0
				if len(req.Channels) > 0 {
					ref = req.Channels[0]
				}
				bounds, err := header.TimeToSamples(runFlags.startSec, runFlags.endSec, ref)
				if err != nil {
					return req, nil, err
				}
				req.Bounds = &bounds
			}
		case needHeader:
			return req, nil, herr
		default:
			logger.Debug("No EDF header; using generic channel names", zap.String("input", input), zap.Error(herr))
		}
	} else if needHeader {
		return req, nil, fmt.Errorf("%w: --labels, --start and --end need an EDF input", types.ErrInvalidRequest)
	}

	cfg.Analysis.Apply(&req)
	return req, labels, nil
}

// parsePairs reads "a-b" or "a:b" channel pairs.
func parsePairs(values []string) ([]types.ChannelPair, error) {
	var out []types.ChannelPair
	for _, v := range values {
		sep := strings.IndexAny(v, "-:")
		if sep <= 0 {
			return nil, fmt.Errorf("%w: channel pair %q, want a-b", types.ErrInvalidRequest, v)
		}
		a, err1 := strconv.Atoi(strings.TrimSpace(v[:sep]))
		b, err2 := strconv.Atoi(strings.TrimSpace(v[sep+1:]))
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: channel pair %q, want a-b", types.ErrInvalidRequest, v)
		}
		out = append(out, types.ChannelPair{a, b})
	}
	return out, nil
}

func printReport(w io.Writer, r *dda.Report) {
	table := ui.NewSimpleTable(fmt.Sprintf("Run %s  %s", r.RunID, r.Request.InputPath),
		[]string{"Variant", "Rows", "Windows", "Source"})
	for _, abbrev := range r.Variants() {
		res := r.Results[abbrev]
		source := res.SourcePath
		if !res.Found() {
			source = styles.Warning.Render("missing")
		}
		table.AddRow(abbrev, strconv.Itoa(res.Rows()), strconv.Itoa(res.Cols()), source)
	}
	fmt.Fprint(w, table.View(styles))

	if p := r.Process; p != nil {
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("%s binary, exit %d, %s", r.Format, p.ExitCode, p.Duration.Round(time.Millisecond))))
	}
	for _, warning := range r.Warnings {
		fmt.Fprintln(w, styles.Warning.Render("warning: ")+warning)
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
