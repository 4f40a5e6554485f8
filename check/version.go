package check

// Version information for the checkedthreads oracle.
const (
	// Version is the current version of the oracle.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the oracle.
type Info struct {
	// Version is the oracle version string.
	Version string

	// Algorithm names the detection model in use.
	Algorithm string
}

// GetInfo returns information about the oracle build.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Algorithm: "per-byte worker ownership (checkedthreads)",
	}
}
