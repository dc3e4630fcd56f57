package build

// Name and Version identify the binary in logs, the health endpoint and the
// version flag. Version is overridden at release time via ldflags.
var (
	Name    = "fmtd"
	Version = "v0.1.0"
)
