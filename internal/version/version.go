// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"

	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/transport"
)

// Set via ldflags, e.g.
// go build -ldflags="-X distributed-actor-learner/internal/version.Version=v1.0.0"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func Short() string {
	return Version
}

// Info returns a single-line version string.
func Info() string {
	commitShort := Commit
	if len(commitShort) > 7 {
		commitShort = commitShort[:7]
	}
	return fmt.Sprintf("actorlearner %s (commit: %s, built: %s, go: %s)",
		Version, commitShort, BuildDate, runtime.Version())
}

// Full adds the protocol and wire format versions.
func Full() string {
	return fmt.Sprintf(`actorlearner %s
  Commit:     %s
  Built:      %s
  Protocol:   %s
  Wire:       %s
  Go version: %s
  OS/Arch:    %s/%s`,
		Version, Commit, BuildDate, transport.ProtocolVersion, codec.Version,
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
