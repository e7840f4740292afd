// Package appversion provides build-time version information.
package appversion

import "fmt"

// Set at build time via -ldflags "-X proz/internal/appversion.version=...".
var (
	version = "dev"     //nolint:gochecknoglobals // ldflags requires package-level var
	commit  = "unknown" //nolint:gochecknoglobals // ldflags requires package-level var
)

// String returns the current version.
func String() string {
	return version
}

// Long returns the version with the commit it was built from.
func Long() string {
	return fmt.Sprintf("%s (%s)", version, commit)
}
