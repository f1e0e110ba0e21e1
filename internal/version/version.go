// Package version reports the binary's build metadata. Release builds
// stamp the variables via ldflags:
//
//	go build -ldflags "-X github.com/nextfoam/biprop/internal/version.Version=v1.0.0"
//
// Binaries built without ldflags fall back to the module and VCS
// information the Go toolchain embeds.
package version

import "runtime/debug"

var (
	Version string
	Commit  string
	Date    string
)

// Resolve returns the version, commit and build date, preferring the
// ldflags values and filling gaps from the embedded build info.
func Resolve() (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "" {
			version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if date == "" {
					date = s.Value
				}
			}
		}
	}
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	if commit == "" {
		commit = "none"
	} else if len(commit) > 12 {
		commit = commit[:12]
	}
	if date == "" {
		date = "unknown"
	}
	return version, commit, date
}
