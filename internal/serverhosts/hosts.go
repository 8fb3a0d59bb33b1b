// Package serverhosts maps an environment and host type to the base URL the
// network-facing components call.
package serverhosts

import "fmt"

// Environment selects the server fleet.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
)

// HostType selects which service within the fleet.
type HostType string

const (
	HostTypeStatic    HostType = "static"
	HostTypeGeo       HostType = "geo"
	HostTypeAnonymous HostType = "anonymous"
)

var hosts = map[Environment]map[HostType]string{
	EnvironmentProduction: {
		HostTypeStatic:    "https://static.ads.openadtrack.com",
		HostTypeGeo:       "https://geo.ads.openadtrack.com",
		HostTypeAnonymous: "https://anonymous.ads.openadtrack.com",
	},
	EnvironmentStaging: {
		HostTypeStatic:    "https://static.ads.openadtrack.dev",
		HostTypeGeo:       "https://geo.ads.openadtrack.dev",
		HostTypeAnonymous: "https://anonymous.ads.openadtrack.dev",
	},
}

// Get returns the base URL for the environment and host type. Unknown
// combinations are errors, never silently defaulted.
func Get(env Environment, hostType HostType) (string, error) {
	byType, ok := hosts[env]
	if !ok {
		return "", fmt.Errorf("unknown environment %q", env)
	}
	url, ok := byType[hostType]
	if !ok {
		return "", fmt.Errorf("unknown host type %q for environment %q", hostType, env)
	}
	return url, nil
}
