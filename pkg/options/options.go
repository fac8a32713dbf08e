// Package options holds the contract shared by every option section.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by each option section (postgres, rabbitmq, ...).
type IOptions interface {
	Validate() error
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join builds a flag name prefix: Join("a", "b") is "a.b." and Join() is "".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined == "" {
		return ""
	}
	return joined + "."
}
