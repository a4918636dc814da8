// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	sg "github.com/neykov/brooklyn-server/internal/network/securitygroup"
)

type rulesSuite struct{}

var _ = gc.Suite(&rulesSuite{})

var ruleGroup = sg.SecurityGroup{ID: "sg-1", ProviderID: "pid-1", Name: "shared", Location: "loc"}

func (s *rulesSuite) TestEverythingFromCIDRDefaultProvider(c *gc.C) {
	rs := sg.NewRuleSet("aws-ec2")
	rules := rs.EverythingFromCIDR("10.0.0.0/8")
	c.Assert(rules, jc.DeepEquals, []sg.Rule{
		{Protocol: sg.ProtoTCP, FromPort: 0, ToPort: 65535, CIDR: "10.0.0.0/8"},
		{Protocol: sg.ProtoUDP, FromPort: 0, ToPort: 65535, CIDR: "10.0.0.0/8"},
		{Protocol: sg.ProtoICMP, FromPort: -1, ToPort: -1, CIDR: "10.0.0.0/8"},
	})
}

func (s *rulesSuite) TestGroupRefUsesProviderAssignedID(c *gc.C) {
	rs := sg.NewRuleSet("aws-ec2")
	c.Check(rs.GroupRef(ruleGroup), gc.Equals, "pid-1")
}

func (s *rulesSuite) TestOpenstackQuirks(c *gc.C) {
	for _, providerID := range []string{"openstack-nova", "openstack-mitaka-nova", "openstack-devtest-compute"} {
		rs := sg.NewRuleSet(providerID)
		// Rule bodies use the internal id and the port range floor is 1.
		c.Check(rs.GroupRef(ruleGroup), gc.Equals, "sg-1", gc.Commentf("provider %s", providerID))
		rules := rs.EverythingFromGroup(ruleGroup)
		c.Assert(rules, gc.HasLen, 3, gc.Commentf("provider %s", providerID))
		c.Check(rules[0].FromPort, gc.Equals, 1)
		c.Check(rules[1].FromPort, gc.Equals, 1)
		c.Check(rules[0].Group, gc.Equals, "sg-1")
	}
}

func (s *rulesSuite) TestAzureSkipsGroupScopedICMP(c *gc.C) {
	rs := sg.NewRuleSet("azurecompute")
	rules := rs.EverythingFromGroup(ruleGroup)
	c.Assert(rules, gc.HasLen, 2)
	for _, r := range rules {
		c.Check(r.Protocol, gc.Not(gc.Equals), sg.ProtoICMP)
	}
	// CIDR-scoped ICMP is still allowed.
	cidrRules := rs.EverythingFromCIDR("0.0.0.0/0")
	c.Check(cidrRules[2].Protocol, gc.Equals, sg.ProtoICMP)
}

func (s *rulesSuite) TestAllFromGroupOnPort(c *gc.C) {
	rs := sg.NewRuleSet("aws-ec2")
	rules := rs.AllFromGroupOnPort(ruleGroup, 8080)
	c.Assert(rules, gc.HasLen, 3)
	c.Check(rules[0], gc.Equals, sg.Rule{Protocol: sg.ProtoTCP, FromPort: 8080, ToPort: 8080, Group: "pid-1"})
	c.Check(rules[1], gc.Equals, sg.Rule{Protocol: sg.ProtoUDP, FromPort: 8080, ToPort: 8080, Group: "pid-1"})
	c.Check(rules[2].Protocol, gc.Equals, sg.ProtoICMP)
}

func (s *rulesSuite) TestSSHFromCIDR(c *gc.C) {
	rs := sg.NewRuleSet("aws-ec2")
	c.Check(rs.SSHFromCIDR("192.0.2.1/32"), gc.Equals,
		sg.Rule{Protocol: sg.ProtoTCP, FromPort: 22, ToPort: 22, CIDR: "192.0.2.1/32"})
}
