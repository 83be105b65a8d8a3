package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/jobd/errors"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("jobd %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("jobd dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// IsDev reports whether v is an untagged development build
func IsDev(v string) bool {
	return v == "" || v == "dev"
}

// CheckCompatible verifies that a client built as clientVersion can talk to a
// server reporting serverVersion: both must share a major version (and, for
// 0.x releases, the minor version). Development builds are always compatible.
func CheckCompatible(clientVersion, serverVersion string) error {
	if IsDev(clientVersion) || IsDev(serverVersion) {
		return nil
	}

	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid client version %s", clientVersion)
	}
	server, err := semver.NewVersion(serverVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid server version %s", serverVersion)
	}

	constraint, err := semver.NewConstraint(compatibleRange(client))
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint for %s", clientVersion)
	}

	if !constraint.Check(server) {
		return errors.WithHint(
			errors.Newf("server version %s is incompatible with client %s", serverVersion, clientVersion),
			"upgrade jobd so client and server share a major version")
	}
	return nil
}

// compatibleRange is ^major for 1.x+ and ~0.minor for 0.x
func compatibleRange(v *semver.Version) string {
	if v.Major() == 0 {
		return fmt.Sprintf("~0.%d.0", v.Minor())
	}
	return fmt.Sprintf("^%d.0.0", v.Major())
}
