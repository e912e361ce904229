// Package decoder reads the DDA binary's variant output files into
// channel-major result matrices.
//
// Raw files are window-major: one row per time window, two leading metadata
// columns, then each channel (or pair) contributes Stride interleaved columns.
// Only the first column of each group is the coefficient of interest.
package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
	"ddaharness/internal/variants"
)

// MetadataColumns is how many leading columns the binary writes before the data.
const MetadataColumns = 2

const maxLineBytes = 64 * 1024 * 1024

// Decode locates and decodes the output file of every requested variant.
//
// A variant whose file is missing gets an entry with a warning and no matrix.
// If no requested variant has a file, Decode fails with ErrOutputNotFound.
// Any other problem with a found file fails the whole call.
func Decode(outputPath string, requested []string) (map[string]*types.DecodedResult, error) {
	descriptors, err := variants.Resolve(requested)
	if err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: no variants requested", types.ErrMissingParameter)
	}

	timer := logging.StartTimer(logging.CategoryDecoder, "Decode "+outputPath)
	defer timer.Stop()

	results := make(map[string]*types.DecodedResult, len(descriptors))
	var tried []string
	found := 0
	for _, d := range descriptors {
		candidates := variants.Candidates(outputPath, d)
		path := firstExisting(candidates)
		if path == "" {
			warning := fmt.Sprintf("no output file for %s (tried %s)", d.Abbreviation, strings.Join(candidates, ", "))
			logging.DecoderWarn("%s", warning)
			results[d.Abbreviation] = &types.DecodedResult{Variant: d.Abbreviation, Warnings: []string{warning}}
			tried = append(tried, candidates...)
			continue
		}

		res, err := DecodeFile(path, d)
		if err != nil {
			return nil, err
		}
		results[d.Abbreviation] = res
		found++
	}

	if found == 0 {
		return nil, fmt.Errorf("%w: tried %s", types.ErrOutputNotFound, strings.Join(tried, ", "))
	}
	return results, nil
}

// DecodeFile decodes one variant file.
func DecodeFile(path string, d variants.Descriptor) (*types.DecodedResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrOutputNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		// The binary ran but produced nothing: bad input path or window longer than the data.
		return nil, fmt.Errorf("%w: %s is zero bytes", types.ErrEmptyOutput, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	table, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	matrix, err := Extract(table, d.Stride)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	res := &types.DecodedResult{
		Variant:    d.Abbreviation,
		Matrix:     matrix,
		SourcePath: path,
	}
	if n := countNonFinite(matrix); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d non-finite values", n))
	}

	logging.Decoder("Decoded %s from %s: %d rows x %d windows", d.Abbreviation, path, res.Rows(), res.Cols())
	return res, nil
}

// ParseTable reads a whitespace-delimited numeric table. Blank lines are skipped.
// A single-row file yields one row. Rows of different widths are malformed.
func ParseTable(r io.Reader) ([][]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var table [][]float64
	width := -1
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if width >= 0 && len(fields) != width {
			return nil, fmt.Errorf("%w: line %d has %d columns, expected %d", types.ErrMalformedOutput, line, len(fields), width)
		}
		width = len(fields)

		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %q is not a number", types.ErrMalformedOutput, line, i+1, field)
			}
			row[i] = v
		}
		table = append(table, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("%w: no numeric values", types.ErrEmptyOutput)
	}
	logging.DecoderDebug("Parsed table: %d rows x %d columns", len(table), width)
	return table, nil
}

// Extract drops the metadata columns, keeps every stride-th remaining column
// starting at the first, and transposes to channel-major order.
func Extract(table [][]float64, stride int) ([][]float64, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("invalid stride %d", stride)
	}
	if len(table) == 0 || len(table[0]) == 0 {
		return nil, fmt.Errorf("%w: no numeric values", types.ErrEmptyOutput)
	}
	width := len(table[0])
	if width <= MetadataColumns {
		return nil, fmt.Errorf("%w: %d columns leaves no data after %d metadata columns",
			types.ErrMalformedOutput, width, MetadataColumns)
	}

	dataCols := width - MetadataColumns
	channels := (dataCols + stride - 1) / stride
	windows := len(table)

	matrix := make([][]float64, channels)
	for c := range matrix {
		col := MetadataColumns + c*stride
		row := make([]float64, windows)
		for w := range table {
			row[w] = table[w][col]
		}
		matrix[c] = row
	}
	return matrix, nil
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func countNonFinite(matrix [][]float64) int {
	n := 0
	for _, row := range matrix {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				n++
			}
		}
	}
	return n
}
