// Package version holds build metadata stamped at link time via -ldflags.
package version

// Defaults describe a plain `go build`; release builds override all three.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
