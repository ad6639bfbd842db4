package version

import "fmt"

// Build metadata, overridden with -ldflags "-X token-alerts/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("tokenalerts %s (commit %s, built %s)", Version, Commit, BuildDate)
}
