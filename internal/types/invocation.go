package types

import (
	"strings"
)

// BinaryFormat classifies how the DDA binary must be launched.
type BinaryFormat int

const (
	// FormatNative is a regular executable for the host platform.
	FormatNative BinaryFormat = iota
	// FormatBootstrapShim is a self-bootstrapping polyglot (DOS header + shell script).
	FormatBootstrapShim
)

func (f BinaryFormat) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatBootstrapShim:
		return "bootstrap-shim"
	default:
		return "unknown"
	}
}

// InvocationCommand is the fully ordered command line for one DDA run.
// Fields are unexported so the token order cannot change after Build.
type InvocationCommand struct {
	binary     string
	format     BinaryFormat
	prefix     []string
	args       []string
	outputPath string
	variants   []string
}

// NewInvocationCommand copies its inputs; callers keep ownership of their slices.
func NewInvocationCommand(binary string, format BinaryFormat, prefix, args []string, outputPath string, variants []string) InvocationCommand {
	return InvocationCommand{
		binary:     binary,
		format:     format,
		prefix:     cloneStrings(prefix),
		args:       cloneStrings(args),
		outputPath: outputPath,
		variants:   cloneStrings(variants),
	}
}

// Binary returns the DDA binary path.
func (c InvocationCommand) Binary() string { return c.binary }

// Format returns the detected binary format.
func (c InvocationCommand) Format() BinaryFormat { return c.format }

// Prefix returns the launch prefix (e.g. ["sh"]) or nil for direct execution.
func (c InvocationCommand) Prefix() []string { return cloneStrings(c.prefix) }

// Args returns the binary's arguments, without prefix or binary.
func (c InvocationCommand) Args() []string { return cloneStrings(c.args) }

// OutputPath returns the -OUT_FN value.
func (c InvocationCommand) OutputPath() string { return c.outputPath }

// Variants returns the enabled variant abbreviations.
func (c InvocationCommand) Variants() []string { return cloneStrings(c.variants) }

// Argv returns prefix + binary + args, ready for exec.
func (c InvocationCommand) Argv() []string {
	argv := make([]string, 0, len(c.prefix)+1+len(c.args))
	argv = append(argv, c.prefix...)
	argv = append(argv, c.binary)
	argv = append(argv, c.args...)
	return argv
}

// IsZero reports whether the command was never built.
func (c InvocationCommand) IsZero() bool {
	return c.binary == "" && len(c.args) == 0
}

// String renders the argv with simple shell quoting, for logs.
func (c InvocationCommand) String() string {
	argv := c.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$") {
			parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
