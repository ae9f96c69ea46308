package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New returns the build info set by the linker, completed from the module build info embedded
// by the Go toolchain where the linker left the defaults.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	i.GoVersion = bi.GoVersion
	if (i.Version == "" || i.Version == "dev") && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" || i.CommitHash == "n/a" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" || i.BuildDate == "<unknown>" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	ret := fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
	if i.GoVersion != "" {
		ret += " with " + i.GoVersion
	}
	return ret
}
