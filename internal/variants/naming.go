package variants

import (
	"path/filepath"
	"strings"
)

// Candidates lists the file names the binary may have written for d, best first.
//
// The binary is inconsistent about the output stem: given -OUT_FN /tmp/run.txt it
// writes either /tmp/run_ST or /tmp/run.txt_ST. The default variant may also appear
// under the bare legacy name with no suffix at all.
func Candidates(outputPath string, d Descriptor) []string {
	stem := StripExt(outputPath)
	names := []string{d.OutputName(stem)}
	if stem != outputPath {
		names = append(names, d.OutputName(outputPath))
	}
	if d.IsDefault() {
		names = append(names, outputPath)
		if stem != outputPath {
			names = append(names, stem)
		}
	}
	return names
}

// StripExt removes the final extension of the file name, leaving directories alone.
// Dot-files such as ".out" keep their name.
func StripExt(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return path
	}
	return strings.TrimSuffix(path, ext)
}
