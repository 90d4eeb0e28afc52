// Package version provides version information for the ranker application.
package version

// Version is the current version of the ranker application.
const Version = "1.0.0"

// AgentString returns the full agent string with versioning.
// Format: cryptorebound-ranker@v{version}
func AgentString() string {
	return "cryptorebound-ranker@v" + Version
}
