package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the encoder, execution engine and decoder.
// Match with errors.Is; ExternalProcessError also supports errors.As.
var (
	// ErrMissingParameter means a required request field was absent. Raised before launch.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidRequest means a request field violates an invariant.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownVariant means an abbreviation is not in the registry.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrMaskLength means a SELECT mask did not have the full slot count.
	ErrMaskLength = errors.New("select mask length mismatch")

	// ErrBinaryNotExecutable means the binary is missing or permission repair failed.
	ErrBinaryNotExecutable = errors.New("binary not executable")

	// ErrExternalProcess means the binary exited non-zero and left no usable output artifact.
	ErrExternalProcess = errors.New("external process failed")

	// ErrOutputNotFound means no requested variant file exists after the run.
	ErrOutputNotFound = errors.New("output not found")

	// ErrEmptyOutput means an artifact exists but is zero-byte or has no numbers.
	ErrEmptyOutput = errors.New("empty output")

	// ErrMalformedOutput means an artifact parses but violates shape invariants.
	ErrMalformedOutput = errors.New("malformed output")
)

// ExternalProcessError carries everything the binary said before failing.
// Its messages are the only diagnostic signal available, so callers should log both streams.
type ExternalProcessError struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Argv     []string
}

func (e *ExternalProcessError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("%v: exit code %d, no usable output artifact", ErrExternalProcess, e.ExitCode)
	}
	return fmt.Sprintf("%v: exit code %d, no usable output artifact: %s", ErrExternalProcess, e.ExitCode, msg)
}

// Unwrap lets errors.Is(err, ErrExternalProcess) match.
func (e *ExternalProcessError) Unwrap() error {
	return ErrExternalProcess
}

// Kind returns a short stable label for an error from the taxonomy, for logs and the run store.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnknownVariant):
		return "unknown_variant"
	case errors.Is(err, ErrMaskLength):
		return "mask_length"
	case errors.Is(err, ErrBinaryNotExecutable):
		return "binary_not_executable"
	case errors.Is(err, ErrExternalProcess):
		return "external_process"
	case errors.Is(err, ErrOutputNotFound):
		return "output_not_found"
	case errors.Is(err, ErrEmptyOutput):
		return "empty_output"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
