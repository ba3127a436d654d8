// Package version reports which build of peerchat is running. The commit
// comes from -ldflags when set (container builds without .git), otherwise
// from the VCS stamp in debug.BuildInfo, otherwise "dev".
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings such as the client User-Agent.
const AppName = "peerchat"

// commit can be set with -ldflags "-X github.com/jhjames1/peerchat/pkg/version.commit=<sha>".
var commit string

const shortCommitLen = 8

// GitCommit is the short commit hash, or "dev" under go test and non-git builds.
var GitCommit = readCommit()

var goVersion = sync.OnceValue(func() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
})

func readCommit() string {
	if commit != "" {
		return shorten(commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > shortCommitLen {
		return rev[:shortCommitLen]
	}
	return rev
}

// Full returns "peerchat/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}

// GoVersion is the toolchain the binary was built with.
func GoVersion() string {
	return goVersion()
}
