// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package securitygroup reconciles cloud security groups against the
// rules an application needs: read-modify-write cycles against an
// eventually-consistent remote API, serialized per location, with
// bounded retry for transient provider errors.
package securitygroup

import "fmt"

// Protocol is an IP protocol name as providers accept it.
type Protocol string

const (
	ProtoTCP  Protocol = "tcp"
	ProtoUDP  Protocol = "udp"
	ProtoICMP Protocol = "icmp"
)

// Rule is one ingress permission. Exactly one of CIDR and Group is
// set: the source is either an address block or a peer security
// group. For ICMP both ports are -1.
type Rule struct {
	Protocol Protocol
	FromPort int
	ToPort   int
	CIDR     string
	Group    string
}

func (r Rule) String() string {
	source := r.CIDR
	if source == "" {
		source = "group:" + r.Group
	}
	return fmt.Sprintf("%s %d-%d from %s", r.Protocol, r.FromPort, r.ToPort, source)
}

// SecurityGroup is the locally-cached view of a remote group.
type SecurityGroup struct {
	// ID is the provider-internal identifier.
	ID string
	// ProviderID is the provider-assigned identifier used in rule
	// bodies by providers that will not accept the name.
	ProviderID string
	Name       string
	Location   string
	Rules      []Rule
}

// HasRule reports whether the cached view already contains rule.
func (g SecurityGroup) HasRule(rule Rule) bool {
	for _, r := range g.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

func (g SecurityGroup) String() string {
	return fmt.Sprintf("group %q (%s) in %s", g.Name, g.ID, g.Location)
}
