// Package version reports the build identity of the plctool binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version" toml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit" toml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time" toml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version" toml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform" toml:"platform"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty" toml:"dirty,omitempty"`
}

// Set at build time with -ldflags "-X github.com/conneroisu/plctool/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readSettings is replaced in tests.
var readSettings = func() (string, map[string]string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", nil, false
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return info.Main.Version, settings, true
}

// Get returns the build information, preferring linker-set values over
// the module and VCS data embedded by the Go toolchain.
func Get() *BuildInfo {
	info := &BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	mainVersion, settings, ok := readSettings()
	if !ok {
		return info
	}
	if info.GitCommit == "" || info.GitCommit == "unknown" {
		if rev := settings["vcs.revision"]; rev != "" {
			info.GitCommit = rev
		}
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseBuildTime(settings["vcs.time"])
	}
	info.Dirty = settings["vcs.modified"] == "true"
	if info.Version == "" || info.Version == "dev" {
		switch {
		case mainVersion != "" && mainVersion != "(devel)":
			info.Version = mainVersion
		case len(info.GitCommit) >= 7 && info.GitCommit != "unknown":
			info.Version = "dev-" + info.GitCommit[:7]
		default:
			info.Version = "dev"
		}
	}
	return info
}

// Short returns the one-line version shown by --version.
func (b *BuildInfo) Short() string {
	if b.IsRelease() && len(b.GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", b.Version, b.GitCommit[:7])
	}
	return b.Version
}

// String renders every known field, one per line.
func (b *BuildInfo) String() string {
	parts := []string{"Version: " + b.Version}
	if b.GitCommit != "unknown" && b.GitCommit != "" {
		commit := "Commit: " + b.GitCommit
		if b.Dirty {
			commit += " (modified)"
		}
		parts = append(parts, commit)
	}
	if !b.BuildTime.IsZero() {
		parts = append(parts, "Built: "+b.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts, "Go: "+b.GoVersion, "Platform: "+b.Platform)
	return strings.Join(parts, "\n")
}

// IsRelease reports whether the binary carries a real version.
func (b *BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
