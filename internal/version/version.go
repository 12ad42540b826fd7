// Package version holds the release version shared by the server and client.
package version

// Version is the semantic version of this build. Overridden at link time with
// -ldflags "-X github.com/lexiflow/lexisync/internal/version.Version=vX.Y.Z".
var Version = "v0.4.0"
