package contracts

import (
	"fmt"
	"runtime"
)

// Version is the current release of the licensing service.
const Version = "1.0.0"

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionString returns the banner printed by the -version flag.
func VersionString() string {
	return fmt.Sprintf("Lockbox Licensing v%s (built: %s, commit: %s, go: %s)",
		Version, BuildTime, GitCommit, runtime.Version())
}
