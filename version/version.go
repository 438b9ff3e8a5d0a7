// Package version holds build metadata injected at link time.
package version

// These are set via -ldflags at build time.
var (
	// GitRelease is the release tag or "dev" for local builds.
	GitRelease = "dev"

	// GitCommit is the short commit hash.
	GitCommit = "unknown"
)
