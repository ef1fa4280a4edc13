// Package misc holds small helpers which do not belong anywhere else.
package misc

import (
	"runtime/debug"
)

const appName = "bookbind"

var (
	version = "development"
	gitHash = "unknown"
)

// GetAppName returns program name to be used in logs, reports and temporary files.
func GetAppName() string {
	return appName
}

// GetVersion returns program version, either set at link time or derived from
// build information.
func GetVersion() string {
	if version != "development" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

// GetGitHash returns VCS revision recorded in build information.
func GetGitHash() string {
	if gitHash != "unknown" {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return gitHash
}
