// Package featureflag toggles optional quadrant server behaviors from the
// QUADRANT_FEATURE_FLAGS configuration.
package featureflag

import "strings"

// FeatureFlag is the set of enabled flags.
type FeatureFlag map[Flag]struct{}

// New returns the feature flags named in the given list. Names are matched
// case insensitively and blank entries are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag, len(flags))
	for _, f := range flags {
		name := strings.ToUpper(strings.TrimSpace(f))
		if name == "" {
			continue
		}
		featureFlag[Flag(name)] = struct{}{}
	}
	return featureFlag
}

// Has reports whether the flag is enabled.
func (f FeatureFlag) Has(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet calls do when the flag is enabled.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if f.Has(flag) {
		do()
	}
}

// IfNotSet calls do when the flag is disabled.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if !f.Has(flag) {
		do()
	}
}
