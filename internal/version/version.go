package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for a command's -version flag.
func String(cmd string) string {
	return fmt.Sprintf("%s %s (git %s, built %s)", cmd, Version, GitSHA, BuildTime)
}
