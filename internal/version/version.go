// Package version provides build and version information for ARTutor.
package version

// Service is the name reported by health and metrics endpoints.
const Service = "artutord"

// Version is the current release version of ARTutor.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/ARTutor/internal/version.Version=x.y.z"
var Version = "0.3.0"
