// Package deploy holds the pure deployment policy: resource identifier
// derivation, deployment options with their defaults, and remote status
// mapping.
package deploy

import (
	"strings"

	"github.com/tapis-project/flexserv-deployer/internal/core/instance"
)

// Resource id prefixes, one letter per resource kind.
const (
	podIDPrefix    = "p"
	volumeIDPrefix = "v"
)

// DeriveIDs returns the stable (podID, volumeID) pair for a deployment.
//
// When opts carries an explicit deployment id, it is normalized to lowercase
// alphanumeric (e.g. a UUID with dashes stripped), allowing multiple
// independent deployments of the same model for the same user. Otherwise the
// pair is derived from the server descriptor's deployment hash, enforcing one
// deployment per user+model.
//
// Pure: same inputs always yield the same pair.
func DeriveIDs(opts Options, server *instance.ServerInstance) (podID, volumeID string) {
	suffix := ""
	if opts.DeploymentID != "" {
		suffix = NormalizeID(opts.DeploymentID)
	}
	if suffix == "" {
		suffix = strings.ToLower(server.DeploymentHash())
	}
	return podIDPrefix + suffix, volumeIDPrefix + suffix
}

// NormalizeID reduces s to lowercase ASCII alphanumeric characters only.
func NormalizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}
