package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the option set of a command. Flags are
// grouped into named sections for help output and bound into viper under the
// same dotted keys.
type NamedFlagSetOptions interface {
	// Flags returns the option flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields that depend on other fields.
	Complete() error

	// Validate reports every invalid value as one aggregate error.
	Validate() error
}
