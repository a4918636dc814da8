// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

import "github.com/juju/collections/set"

// quirks captures how a provider family deviates from the common
// security-group model. The table is the single place provider
// conditionals live; call sites stay generic.
type quirks struct {
	// usesInternalGroupID means rule bodies reference a peer group by
	// the provider-internal ID rather than the provider-assigned one.
	usesInternalGroupID bool
	// minPort is the lowest port accepted in a full-range rule.
	minPort int
	// skipGroupICMP means the provider rejects ICMP rules scoped to a
	// peer group and they must be omitted.
	skipGroupICMP bool
}

var (
	openstackProviders = set.NewStrings(
		"openstack-nova",
		"openstack-mitaka-nova",
		"openstack-devtest-compute",
	)
	azureProviders = set.NewStrings(
		"azurecompute",
	)
)

// quirksFor looks up the quirks for a provider identifier. Unknown
// providers get the common behaviour.
func quirksFor(providerID string) quirks {
	switch {
	case openstackProviders.Contains(providerID):
		return quirks{usesInternalGroupID: true, minPort: 1}
	case azureProviders.Contains(providerID):
		return quirks{skipGroupICMP: true}
	default:
		return quirks{}
	}
}
