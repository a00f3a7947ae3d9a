package version

var (
	// Version is the producing version tag stamped into result metadata and lineage.
	Version = "0.3.0"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
)
