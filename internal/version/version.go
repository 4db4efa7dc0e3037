// Package version reports the build version of the server and the
// protocol revision it speaks to peers.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// ProtocolVersion is advertised by the info endpoint. Peers refuse to
// talk to a server with a different major protocol revision.
const ProtocolVersion = 1

// These variables are set at build time using -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// GetVersion returns the application version, falling back to VCS
// information embedded by the Go toolchain.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}

	return "dev"
}

// GetGitCommit returns the commit hash the binary was built from.
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}

	return "unknown"
}

// GetShortVersion returns a short version string suitable for display
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()

	if commit != "unknown" && len(commit) >= 7 {
		if version != "dev" {
			return fmt.Sprintf("%s (%s)", version, commit[:7])
		}
		return "dev-" + commit[:7]
	}

	return version
}

// UserAgent is sent by the CLI when it talks to a peer.
func UserAgent() string {
	return fmt.Sprintf("comicshare/%s (%s/%s)", GetVersion(), runtime.GOOS, runtime.GOARCH)
}
