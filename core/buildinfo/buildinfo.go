package buildinfo

// Set with -ldflags at release time:
//
//	-X 'github.com/m3rciful/paydesk/core/buildinfo.Version=v0.4.0'
//	-X 'github.com/m3rciful/paydesk/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/paydesk/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the release tag of the binary.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders version metadata for startup logs and the health endpoint.
func String() string {
	if Date == "" {
		return Version + " (" + Commit + ")"
	}
	return Version + " (" + Commit + ", " + Date + ")"
}
