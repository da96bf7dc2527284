package buildinfo

import "fmt"

// These variables are set at build time using ldflags
var (
	Version = "dev"
	Commit  = ""

	// BuildEnvironment selects the config overlay baked into releases
	BuildEnvironment = "preprod"
)

// String renders the version line shown by the CLI
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
