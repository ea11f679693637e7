// Package debug provides the engine's ad hoc, env-var-gated diagnostic
// logger. It exists alongside the structured log/slog messages the engine
// itself emits for operator-facing events (s4.Handle.Sync's "checkpoint
// completed", internal/txn's "deadlock detected") — this logger is for
// development-time tracing inside internal/store, internal/txn, and
// internal/walog that would otherwise be too noisy to always emit.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("S4_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug tracing is active (via S4_DEBUG or SetVerbose).
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output programmatically.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses non-essential output from PrintNormal/PrintlnNormal.
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes a trace line to stderr when debug tracing is enabled.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes a trace line to stdout when debug tracing is enabled.
func Printf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
