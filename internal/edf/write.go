package edf

import (
	"bytes"
	"fmt"
	"strconv"
)

// MarshalBinary renders h as a fixed-width EDF header. HeaderBytes is recomputed.
// Values wider than their field are an error rather than being silently cut.
func (h *Header) MarshalBinary() ([]byte, error) {
	ns := len(h.Signals)
	var buf bytes.Buffer
	buf.Grow(MainHeaderBytes + ns*SignalHeaderBytes)

	fw := &fieldWriter{buf: &buf}
	version := h.Version
	if version == "" {
		version = "0"
	}
	fw.put(version, 8)
	fw.put(h.PatientID, 80)
	fw.put(h.RecordingID, 80)
	fw.put(h.StartDate, 8)
	fw.put(h.StartTime, 8)
	fw.put(strconv.Itoa(MainHeaderBytes+ns*SignalHeaderBytes), 8)
	fw.put(h.Reserved, 44)
	fw.put(strconv.Itoa(h.NumRecords), 8)
	fw.put(strconv.FormatFloat(h.RecordDuration, 'g', -1, 64), 8)
	fw.put(strconv.Itoa(ns), 4)

	for field, width := range signalFieldWidths {
		for _, s := range h.Signals {
			var v string
			switch field {
			case 0:
				v = s.Label
			case 1:
				v = s.Transducer
			case 2:
				v = s.PhysicalDimension
			case 3:
				v = strconv.FormatFloat(s.PhysicalMin, 'g', -1, 64)
			case 4:
				v = strconv.FormatFloat(s.PhysicalMax, 'g', -1, 64)
			case 5:
				v = strconv.Itoa(s.DigitalMin)
			case 6:
				v = strconv.Itoa(s.DigitalMax)
			case 7:
				v = s.Prefiltering
			case 8:
				v = strconv.Itoa(s.SamplesPerRecord)
			}
			fw.put(v, width)
		}
	}
	if fw.err != nil {
		return nil, fw.err
	}
	return buf.Bytes(), nil
}

type fieldWriter struct {
	buf *bytes.Buffer
	err error
}

func (fw *fieldWriter) put(v string, width int) {
	if len(v) > width && fw.err == nil {
		fw.err = fmt.Errorf("%w: %q exceeds field width %d", ErrInvalidHeader, v, width)
	}
	if len(v) > width {
		v = v[:width]
	}
	fw.buf.WriteString(v)
	for i := len(v); i < width; i++ {
		fw.buf.WriteByte(' ')
	}
}
