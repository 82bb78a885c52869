// Package version holds the build-time identity reported in the Server
// response header and the /config endpoint.
package version

// Server is this build's version, reported as "reichat-server/<version>"
// in every HTTP response's Server header (§6).
const Server = "0.1.0"
