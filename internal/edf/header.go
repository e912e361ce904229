// Package edf reads EDF/EDF+ file headers: enough to know each signal's label
// and sample rate so callers can turn time ranges into sample bounds.
package edf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
)

// MainHeaderBytes is the fixed size of the header before the per-signal blocks.
const MainHeaderBytes = 256

// Per-signal field widths, in file order. Each field is stored for all signals
// before the next field begins.
var signalFieldWidths = []int{16, 80, 8, 8, 8, 8, 8, 80, 8, 32}

// SignalHeaderBytes is the header size contributed by each signal.
const SignalHeaderBytes = 256

// ErrInvalidHeader marks a file whose header cannot be parsed.
var ErrInvalidHeader = errors.New("invalid EDF header")

// Signal is one channel's header block.
type Signal struct {
	Label             string  `json:"label"`
	Transducer        string  `json:"transducer,omitempty"`
	PhysicalDimension string  `json:"physical_dimension,omitempty"`
	PhysicalMin       float64 `json:"physical_min"`
	PhysicalMax       float64 `json:"physical_max"`
	DigitalMin        int     `json:"digital_min"`
	DigitalMax        int     `json:"digital_max"`
	Prefiltering      string  `json:"prefiltering,omitempty"`
	SamplesPerRecord  int     `json:"samples_per_record"`
}

// Header is the parsed EDF header.
type Header struct {
	Version        string   `json:"version"`
	PatientID      string   `json:"patient_id"`
	RecordingID    string   `json:"recording_id"`
	StartDate      string   `json:"start_date"`
	StartTime      string   `json:"start_time"`
	HeaderBytes    int      `json:"header_bytes"`
	Reserved       string   `json:"reserved,omitempty"`
	NumRecords     int      `json:"num_records"`
	RecordDuration float64  `json:"record_duration"`
	Signals        []Signal `json:"signals"`
}

// ReadHeader parses the header of the file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open EDF file: %w", err)
	}
	defer f.Close()

	h, err := ParseHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.EDFDebug("Read EDF header %s: %d signals, %d records of %gs", path, len(h.Signals), h.NumRecords, h.RecordDuration)
	return h, nil
}

// ParseHeader reads the main header and all signal blocks from r.
func ParseHeader(r io.Reader) (*Header, error) {
	main := make([]byte, MainHeaderBytes)
	if _, err := io.ReadFull(r, main); err != nil {
		return nil, fmt.Errorf("%w: main header: %v", ErrInvalidHeader, err)
	}

	fr := &fieldReader{buf: main}
	h := &Header{
		Version:     fr.text(8),
		PatientID:   fr.text(80),
		RecordingID: fr.text(80),
		StartDate:   fr.text(8),
		StartTime:   fr.text(8),
	}
	h.HeaderBytes = fr.integer(8, "header bytes")
	h.Reserved = fr.text(44)
	h.NumRecords = fr.integer(8, "number of records")
	h.RecordDuration = fr.float(8, "record duration")
	ns := fr.integer(4, "number of signals")
	if fr.err != nil {
		return nil, fr.err
	}
	if ns <= 0 {
		return nil, fmt.Errorf("%w: %d signals", ErrInvalidHeader, ns)
	}
	if h.HeaderBytes != 0 && h.HeaderBytes != MainHeaderBytes+ns*SignalHeaderBytes {
		logging.EDFDebug("Header byte count %d disagrees with %d signals", h.HeaderBytes, ns)
	}

	block := make([]byte, ns*SignalHeaderBytes)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("%w: signal headers: %v", ErrInvalidHeader, err)
	}

	h.Signals = make([]Signal, ns)
	fr = &fieldReader{buf: block}
	for field, width := range signalFieldWidths {
		for i := range h.Signals {
			s := &h.Signals[i]
			switch field {
			case 0:
				s.Label = fr.text(width)
			case 1:
				s.Transducer = fr.text(width)
			case 2:
				s.PhysicalDimension = fr.text(width)
			case 3:
				s.PhysicalMin = fr.float(width, "physical minimum")
			case 4:
				s.PhysicalMax = fr.float(width, "physical maximum")
			case 5:
				s.DigitalMin = fr.integer(width, "digital minimum")
			case 6:
				s.DigitalMax = fr.integer(width, "digital maximum")
			case 7:
				s.Prefiltering = fr.text(width)
			case 8:
				s.SamplesPerRecord = fr.integer(width, "samples per record")
			default:
				fr.skip(width)
			}
		}
	}
	if fr.err != nil {
		return nil, fr.err
	}
	return h, nil
}

// Labels returns the signal labels in file order.
func (h *Header) Labels() []string {
	out := make([]string, len(h.Signals))
	for i, s := range h.Signals {
		out[i] = s.Label
	}
	return out
}

// SampleRate returns signal i's rate in Hz.
func (h *Header) SampleRate(i int) (float64, error) {
	if i < 0 || i >= len(h.Signals) {
		return 0, fmt.Errorf("%w: signal %d out of range [0,%d)", types.ErrInvalidRequest, i, len(h.Signals))
	}
	if h.RecordDuration <= 0 {
		return 0, fmt.Errorf("%w: record duration %g", ErrInvalidHeader, h.RecordDuration)
	}
	return float64(h.Signals[i].SamplesPerRecord) / h.RecordDuration, nil
}

// Duration returns the recording length in seconds.
func (h *Header) Duration() float64 {
	return float64(h.NumRecords) * h.RecordDuration
}

// TotalSamples returns signal i's sample count over the whole recording.
func (h *Header) TotalSamples(i int) int64 {
	if i < 0 || i >= len(h.Signals) {
		return 0
	}
	return int64(h.NumRecords) * int64(h.Signals[i].SamplesPerRecord)
}

// TimeToSamples converts [startSec, endSec) on signal channel into sample bounds.
// endSec <= 0 means the end of the recording. The end is clamped to the recording.
func (h *Header) TimeToSamples(startSec, endSec float64, channel int) (types.SampleBounds, error) {
	rate, err := h.SampleRate(channel)
	if err != nil {
		return types.SampleBounds{}, err
	}
	total := h.TotalSamples(channel)

	start := int64(math.Floor(startSec * rate))
	end := total
	if endSec > 0 {
		end = int64(math.Ceil(endSec * rate))
	}
	if total > 0 && end > total {
		end = total
	}
	if start < 0 || start >= end {
		return types.SampleBounds{}, fmt.Errorf("%w: time range [%g,%g)s maps to samples [%d,%d)",
			types.ErrInvalidRequest, startSec, endSec, start, end)
	}
	return types.SampleBounds{Start: start, End: end}, nil
}

// ChannelIndices maps labels to 0-based signal indices. Matching ignores case
// and surrounding whitespace.
func (h *Header) ChannelIndices(labels []string) ([]int, error) {
	index := make(map[string]int, len(h.Signals))
	for i, s := range h.Signals {
		key := strings.ToLower(strings.TrimSpace(s.Label))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	out := make([]int, 0, len(labels))
	for _, l := range labels {
		i, ok := index[strings.ToLower(strings.TrimSpace(l))]
		if !ok {
			return nil, fmt.Errorf("%w: no channel labelled %q", types.ErrInvalidRequest, l)
		}
		out = append(out, i)
	}
	return out, nil
}

// fieldReader walks fixed-width ASCII fields and keeps the first parse error.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (fr *fieldReader) next(width int) []byte {
	if fr.off+width > len(fr.buf) {
		if fr.err == nil {
			fr.err = fmt.Errorf("%w: truncated at offset %d", ErrInvalidHeader, fr.off)
		}
		return nil
	}
	b := fr.buf[fr.off : fr.off+width]
	fr.off += width
	return b
}

func (fr *fieldReader) skip(width int) {
	fr.next(width)
}

func (fr *fieldReader) text(width int) string {
	return string(bytes.TrimSpace(fr.next(width)))
}

func (fr *fieldReader) integer(width int, name string) int {
	s := fr.text(width)
	if fr.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Some writers store integral fields as "256.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			fr.err = fmt.Errorf("%w: %s %q", ErrInvalidHeader, name, s)
			return 0
		}
		v = int(f)
	}
	return v
}

func (fr *fieldReader) float(width int, name string) float64 {
	s := fr.text(width)
	if fr.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fr.err = fmt.Errorf("%w: %s %q", ErrInvalidHeader, name, s)
		return 0
	}
	return v
}
