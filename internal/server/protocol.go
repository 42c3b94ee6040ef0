package server

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Protocol is the version of the display-list frame protocol spoken on /ws.
// Clients with the same major version and an equal or older minor version
// can replay every frame the server sends.
const Protocol = "1.1.0"

// Compatible reports whether a client speaking protocol client can replay
// frames of protocol server.
func Compatible(client, server string) bool {
	c, s := CanonicalVersion(client), CanonicalVersion(server)
	if !semver.IsValid(c) || !semver.IsValid(s) {
		return false
	}
	return semver.Major(c) == semver.Major(s) && semver.Compare(c, s) <= 0
}

// NormalizeVersion strips whitespace and a leading "v".
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// CanonicalVersion returns v with the "v" prefix semver expects.
func CanonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsNewerVersion reports whether latest is newer than current.
func IsNewerVersion(latest, current string) bool {
	return semver.Compare(CanonicalVersion(latest), CanonicalVersion(current)) > 0
}
