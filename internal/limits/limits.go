// Package limits holds the static per-joint position and effort bounds used
// by the safety pipeline. The table is loaded once at activation and is
// read-only afterwards.
package limits

import "log"

// Process-wide fallbacks for joints with no configured limits: a full-range
// position span and a large effort sentinel.
const (
	DefaultMinPosition = -3.14159
	DefaultMaxPosition = 3.14159
	DefaultMaxEffort   = 1000.0
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// JointLimits bounds a single joint.
type JointLimits struct {
	MinPosition float64
	MaxPosition float64
	MaxEffort   float64
}

// Defaults returns the process-wide fallback limits.
func Defaults() JointLimits {
	return JointLimits{
		MinPosition: DefaultMinPosition,
		MaxPosition: DefaultMaxPosition,
		MaxEffort:   DefaultMaxEffort,
	}
}

// Table maps joint names to their configured limits. Immutable after Build.
type Table struct {
	entries map[string]JointLimits
}

// Build constructs a Table from explicitly configured entries, logging each
// joint in joints that has no configured limits. Missing configuration is not
// fatal; Lookup falls back to Defaults for those joints.
func Build(configured map[string]JointLimits, joints []string) *Table {
	entries := make(map[string]JointLimits, len(configured))
	for name, lim := range configured {
		entries[name] = lim
		Logf("joint limits: %s position [%f,%f], effort [%f,%f]",
			name, lim.MinPosition, lim.MaxPosition, -lim.MaxEffort, lim.MaxEffort)
	}
	for _, name := range joints {
		if _, ok := entries[name]; !ok {
			Logf("no joint limits configured for %s, using defaults", name)
		}
	}
	return &Table{entries: entries}
}

// Lookup returns the configured limits for name, or the process-wide defaults
// when the joint has no explicit configuration.
func (t *Table) Lookup(name string) JointLimits {
	if lim, ok := t.entries[name]; ok {
		return lim
	}
	return Defaults()
}

// Configured reports whether name has explicitly configured limits.
func (t *Table) Configured(name string) bool {
	_, ok := t.entries[name]
	return ok
}
