package version

// Build metadata, injected at release time via -ldflags. Defaults identify a
// local development build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the release version.
func GetVersion() string {
	return Version
}

// GetCommit returns the source commit hash.
func GetCommit() string {
	return Commit
}
