// Package version reports the decil build version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set via ldflags on release builds.
var Version string

// Revision is the short VCS revision of the build, with a "-dirty" suffix
// for modified trees.
var Revision = revision(debug.ReadBuildInfo)

// GetVersion returns [Version], falling back to the module version and then
// to [Revision].
func GetVersion() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return Revision
}

func revision(read func() (*debug.BuildInfo, bool)) string {
	info, ok := read()
	if !ok {
		return "unknown"
	}

	rev, dirty := "unknown", false

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value[:min(len(s.Value), 7)]
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if dirty {
		return strings.Join([]string{rev, "dirty"}, "-")
	}

	return rev
}
