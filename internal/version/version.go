// Package version carries build identity stamped in via -ldflags:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 \
//	    -X .../internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the version with its commit for startup banners.
func String() string {
	return Version + " (" + GitSHA + ")"
}
