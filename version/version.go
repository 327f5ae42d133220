package version

import "fmt"

// these values are set at build time via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	BuiltBy   = "unknown"
	Dirty     = false
	DirtyText = ""
)

var FullVersion = composeVersion()

func composeVersion() string {
	if Dirty {
		DirtyText = " (dirty)"
	}
	return fmt.Sprintf("%s%s built %s commit %s by %s",
		Version, DirtyText, Date, Commit, BuiltBy)
}
