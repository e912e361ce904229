package tactile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"ddaharness/internal/logging"
	"ddaharness/internal/types"
)

// headerProbeBytes is how much of the binary DetectFormat reads.
const headerProbeBytes = 64

// Known bootstrap-shim openings: a DOS header magic that is also the start of a
// shell variable assignment, so /bin/sh can run the file as a script.
var shimMagics = [][]byte{
	[]byte("MZqFpD='"),
	[]byte("jartsr='"),
}

// DetectFormat sniffs the leading bytes of the binary at path.
func DetectFormat(path string) (types.BinaryFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.FormatNative, fmt.Errorf("%w: %v", types.ErrBinaryNotExecutable, err)
	}
	defer f.Close()

	header := make([]byte, headerProbeBytes)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return types.FormatNative, fmt.Errorf("failed to read binary header: %w", err)
	}

	format := ClassifyHeader(header[:n])
	logging.TactileDebug("Detected binary format %s for %s", format, path)
	return format, nil
}

// ClassifyHeader classifies a binary from its leading bytes.
func ClassifyHeader(header []byte) types.BinaryFormat {
	for _, magic := range shimMagics {
		if bytes.HasPrefix(header, magic) {
			return types.FormatBootstrapShim
		}
	}
	// Other shim builders vary the bytes after "MZ" but keep the assignment framing
	// within the first few bytes.
	if bytes.HasPrefix(header, []byte("MZ")) {
		probe := header
		if len(probe) > 16 {
			probe = probe[:16]
		}
		if bytes.Contains(probe[2:], []byte("='")) {
			return types.FormatBootstrapShim
		}
	}
	return types.FormatNative
}

// LaunchPrefix returns the tokens placed before the binary path.
// On Unix targets a shim always runs through the shell; everywhere else, and for
// native binaries, the binary runs directly. shell defaults to "sh".
func LaunchPrefix(format types.BinaryFormat, goos, shell string) []string {
	if format != types.FormatBootstrapShim || goos == "windows" {
		return nil
	}
	if shell == "" {
		shell = "sh"
	}
	return []string{shell}
}

// EnsureExecutable adds execute permission to the binary when it is missing.
func EnsureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrBinaryNotExecutable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", types.ErrBinaryNotExecutable, path)
	}
	if !needsExecBit() {
		return nil
	}

	mode := info.Mode().Perm()
	if mode&0100 != 0 {
		return nil
	}

	logging.TactileWarn("Binary %s is not executable (mode %o), adding execute permission", path, mode)
	if err := os.Chmod(path, mode|0111); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", types.ErrBinaryNotExecutable, path, err)
	}
	return nil
}
