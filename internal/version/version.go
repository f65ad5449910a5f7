// Package version carries the engine version and decides whether a strategy
// config written for another engine version can be loaded.
package version

// Version is the engine version. Release builds set it with
// -ldflags "-X github.com/rxtech-lab/argo-strategy/internal/version.Version=v1.2.3".
// "main" marks a development build.
var Version = "v0.4.0"

func GetVersion() string {
	return Version
}
