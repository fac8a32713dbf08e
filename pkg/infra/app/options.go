package app

import "github.com/kart-io/chunkflow/pkg/infra/app/cliflag"

// CliOptions is implemented by every command's option set.
type CliOptions interface {
	// Flags returns the command flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills derived defaults.
	Complete() error
	// Validate validates the options.
	Validate() error
}
