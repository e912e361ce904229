package types

import (
	"time"
)

// ProcessResult is what the execution engine observed. It is consumed by the decoder
// right away and not retained.
type ProcessResult struct {
	// ExitCode is -1 when the process never produced a status (killed or failed to start).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Truncated is set when captured output exceeded the configured limit.
	Truncated bool `json:"truncated,omitempty"`

	// OutputListing is the output directory's entries after the run.
	OutputListing []string `json:"output_listing"`

	// Artifact is the expected output file that was found, if any.
	Artifact string `json:"artifact,omitempty"`

	// ObservedArtifacts are files the watcher saw being written during the run.
	ObservedArtifacts []string `json:"observed_artifacts,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Killed     bool   `json:"killed,omitempty"`
	KillReason string `json:"kill_reason,omitempty"`

	// CPUTime is user+system time reported by the OS, when available.
	CPUTime time.Duration `json:"cpu_time,omitempty"`
	MaxRSS  int64         `json:"max_rss_bytes,omitempty"`
}

// ArtifactFound reports whether the completion policy located an output file.
func (r *ProcessResult) ArtifactFound() bool {
	return r != nil && r.Artifact != ""
}

// DecodedResult is one variant's channel-major matrix.
type DecodedResult struct {
	Variant string `json:"variant"`

	// Matrix is rows = channels (or pairs), columns = time windows.
	Matrix [][]float64 `json:"matrix"`

	SourcePath string   `json:"source_path,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Rows returns the channel/pair count.
func (d *DecodedResult) Rows() int {
	return len(d.Matrix)
}

// Cols returns the window count.
func (d *DecodedResult) Cols() int {
	if len(d.Matrix) == 0 {
		return 0
	}
	return len(d.Matrix[0])
}

// Found reports whether the variant's output file was located.
func (d *DecodedResult) Found() bool {
	return d.SourcePath != ""
}
