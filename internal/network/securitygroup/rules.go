// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

const maxPort = 65535

// RuleSet derives concrete permission sets for one provider, applying
// its quirks: port-range minimum, group-reference encoding and the
// ICMP-to-peer-group exclusion.
type RuleSet struct {
	quirks quirks
}

// NewRuleSet returns the derivation rules for the provider.
func NewRuleSet(providerID string) RuleSet {
	return RuleSet{quirks: quirksFor(providerID)}
}

// GroupRef encodes a peer-group reference the way the provider's rule
// bodies expect it.
func (rs RuleSet) GroupRef(g SecurityGroup) string {
	if rs.quirks.usesInternalGroupID {
		return g.ID
	}
	return g.ProviderID
}

// EverythingFromCIDR allows all TCP, UDP and ICMP traffic from the
// address block.
func (rs RuleSet) EverythingFromCIDR(cidr string) []Rule {
	return []Rule{
		{Protocol: ProtoTCP, FromPort: rs.quirks.minPort, ToPort: maxPort, CIDR: cidr},
		{Protocol: ProtoUDP, FromPort: rs.quirks.minPort, ToPort: maxPort, CIDR: cidr},
		{Protocol: ProtoICMP, FromPort: -1, ToPort: -1, CIDR: cidr},
	}
}

// EverythingFromGroup allows all traffic from members of the peer
// group: TCP and UDP full-range always, ICMP only where the provider
// accepts group-scoped ICMP rules.
func (rs RuleSet) EverythingFromGroup(g SecurityGroup) []Rule {
	ref := rs.GroupRef(g)
	rules := []Rule{
		{Protocol: ProtoTCP, FromPort: rs.quirks.minPort, ToPort: maxPort, Group: ref},
		{Protocol: ProtoUDP, FromPort: rs.quirks.minPort, ToPort: maxPort, Group: ref},
	}
	if !rs.quirks.skipGroupICMP {
		rules = append(rules, Rule{Protocol: ProtoICMP, FromPort: -1, ToPort: -1, Group: ref})
	}
	return rules
}

// AllFromGroupOnPort allows TCP and UDP from the peer group on one
// port, plus ICMP where supported.
func (rs RuleSet) AllFromGroupOnPort(g SecurityGroup, port int) []Rule {
	ref := rs.GroupRef(g)
	rules := []Rule{
		{Protocol: ProtoTCP, FromPort: port, ToPort: port, Group: ref},
		{Protocol: ProtoUDP, FromPort: port, ToPort: port, Group: ref},
	}
	if !rs.quirks.skipGroupICMP {
		rules = append(rules, Rule{Protocol: ProtoICMP, FromPort: -1, ToPort: -1, Group: ref})
	}
	return rules
}

// SSHFromCIDR allows TCP port 22 from the address block.
func (rs RuleSet) SSHFromCIDR(cidr string) Rule {
	return Rule{Protocol: ProtoTCP, FromPort: 22, ToPort: 22, CIDR: cidr}
}
