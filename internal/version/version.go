// Package version carries build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/hariprasath93/zerodha-liquidity-analysis/internal/version.Version=1.0.0 \
//	                   -X github.com/hariprasath93/zerodha-liquidity-analysis/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/hariprasath93/zerodha-liquidity-analysis/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	// Version is the semantic version, "dev" for unstamped builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String returns the full version line used in startup logs.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
