package app

import "github.com/kart-io/version"

// GetVersion returns the git version stamped into the binary.
func GetVersion() string {
	return version.Get().GitVersion
}
