// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup_test

import (
	"context"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	sg "github.com/neykov/brooklyn-server/internal/network/securitygroup"
)

type customizerSuite struct {
	provider *fakeProvider
}

var _ = gc.Suite(&customizerSuite{})

func (s *customizerSuite) SetUpTest(c *gc.C) {
	s.provider = newFakeProvider("aws-ec2")
}

func (s *customizerSuite) newCustomizer(c *gc.C) *sg.Customizer {
	cust, err := sg.NewCustomizer(sg.CustomizerConfig{
		ApplicationID: "App1",
		Provider:      s.provider,
		Clock:         clock.WallClock,
		Retryable:     sg.AWSRetryable,
	})
	c.Assert(err, jc.ErrorIsNil)
	return cust
}

func (s *customizerSuite) TestConfigValidation(c *gc.C) {
	_, err := sg.NewCustomizer(sg.CustomizerConfig{Provider: s.provider, Clock: clock.WallClock})
	c.Check(err, jc.ErrorIs, errors.NotValid)
	_, err = sg.NewCustomizer(sg.CustomizerConfig{ApplicationID: "a", Clock: clock.WallClock})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *customizerSuite) TestSharedGroupName(c *gc.C) {
	c.Check(s.newCustomizer(c).SharedGroupName(), gc.Equals, "brooklyn-app1-shared")
}

func (s *customizerSuite) TestReconcileSharedGroupCreatesWithBootstrapRules(c *gc.C) {
	cust := s.newCustomizer(c)
	group, err := cust.ReconcileSharedGroup(context.Background(), "us-east-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(group.Name, gc.Equals, "brooklyn-app1-shared")

	stored := s.provider.group(group.ID)
	// Intra-group TCP, UDP and ICMP plus SSH from the world.
	c.Assert(stored.Rules, gc.HasLen, 4)
	c.Check(stored.HasRule(sg.Rule{Protocol: sg.ProtoTCP, FromPort: 22, ToPort: 22, CIDR: "0.0.0.0/0"}), jc.IsTrue)
	c.Check(stored.HasRule(sg.Rule{Protocol: sg.ProtoTCP, FromPort: 0, ToPort: 65535, Group: group.ProviderID}), jc.IsTrue)
	c.Check(stored.HasRule(sg.Rule{Protocol: sg.ProtoICMP, FromPort: -1, ToPort: -1, Group: group.ProviderID}), jc.IsTrue)
}

func (s *customizerSuite) TestReconcileSharedGroupReusesExisting(c *gc.C) {
	cust := s.newCustomizer(c)
	first, err := cust.ReconcileSharedGroup(context.Background(), "us-east-1")
	c.Assert(err, jc.ErrorIsNil)
	second, err := cust.ReconcileSharedGroup(context.Background(), "us-east-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second.ID, gc.Equals, first.ID)
	c.Check(s.provider.groupCount(), gc.Equals, 1)
}

func (s *customizerSuite) TestSharedGroupPerLocation(c *gc.C) {
	cust := s.newCustomizer(c)
	east, err := cust.ReconcileSharedGroup(context.Background(), "us-east-1")
	c.Assert(err, jc.ErrorIsNil)
	west, err := cust.ReconcileSharedGroup(context.Background(), "us-west-2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(east.ID, gc.Not(gc.Equals), west.ID)
}

// provisionNode sets up the two groups a provisioned machine carries:
// the application's shared group and the machine-unique one.
func (s *customizerSuite) provisionNode(c *gc.C, cust *sg.Customizer, location, nodeID string) (shared, unique sg.SecurityGroup) {
	shared, err := cust.ReconcileSharedGroup(context.Background(), location)
	c.Assert(err, jc.ErrorIsNil)
	unique, err = s.provider.CreateGroup(context.Background(), "node-"+nodeID, location)
	c.Assert(err, jc.ErrorIsNil)
	s.provider.attachNode(nodeID, shared.ID, unique.ID)
	return shared, unique
}

func (s *customizerSuite) TestAddRulesToNode(c *gc.C) {
	cust := s.newCustomizer(c)
	_, unique := s.provisionNode(c, cust, "us-east-1", "i-1")

	rules := []sg.Rule{
		{Protocol: sg.ProtoTCP, FromPort: 8080, ToPort: 8080, CIDR: "0.0.0.0/0"},
		{Protocol: sg.ProtoTCP, FromPort: 8443, ToPort: 8443, CIDR: "0.0.0.0/0"},
	}
	group, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(group.ID, gc.Equals, unique.ID)
	c.Check(s.provider.group(unique.ID).Rules, gc.HasLen, 2)
}

func (s *customizerSuite) TestAddRulesToNodeSkipsKnownRules(c *gc.C) {
	cust := s.newCustomizer(c)
	_, unique := s.provisionNode(c, cust, "us-east-1", "i-1")

	rules := []sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 8080, ToPort: 8080, CIDR: "0.0.0.0/0"}}
	_, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	// Applying the same set again must not grow the permission set.
	_, err = cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.provider.group(unique.ID).Rules, gc.HasLen, 1)
}

func (s *customizerSuite) TestRemoveRulesFromNode(c *gc.C) {
	cust := s.newCustomizer(c)
	_, unique := s.provisionNode(c, cust, "us-east-1", "i-1")

	rules := []sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 8080, ToPort: 8080, CIDR: "0.0.0.0/0"}}
	_, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	err = cust.RemoveRulesFromNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.provider.group(unique.ID).Rules, gc.HasLen, 0)
}

func (s *customizerSuite) TestColdCacheRediscovery(c *gc.C) {
	cust := s.newCustomizer(c)
	shared, unique := s.provisionNode(c, cust, "us-east-1", "i-1")

	// Simulate a restart: all cached group references are gone.
	cust.ClearCaches()

	rules := []sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 9000, ToPort: 9000, CIDR: "0.0.0.0/0"}}
	group, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(group.ID, gc.Equals, unique.ID)

	// Rediscovery restored the shared-group cache entry as well: the
	// next reconcile does not create a second group.
	reconciled, err := cust.ReconcileSharedGroup(context.Background(), "us-east-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(reconciled.ID, gc.Equals, shared.ID)
	c.Check(s.provider.groupCount(), gc.Equals, 2)
}

func (s *customizerSuite) TestUnknownNodeFails(c *gc.C) {
	cust := s.newCustomizer(c)
	_, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-missing",
		[]sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 80, ToPort: 80, CIDR: "0.0.0.0/0"}})
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *customizerSuite) TestFailedAddLeavesCachesUsable(c *gc.C) {
	cust := s.newCustomizer(c)
	_, unique := s.provisionNode(c, cust, "us-east-1", "i-1")

	s.provider.failNext("add", &sg.ProviderError{Code: "UnauthorizedOperation"})
	rules := []sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 8080, ToPort: 8080, CIDR: "0.0.0.0/0"}}
	_, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, gc.NotNil)

	// The cached references stay valid for a retry on a later call.
	group, err := cust.AddRulesToNode(context.Background(), "us-east-1", "i-1", rules)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(group.ID, gc.Equals, unique.ID)
	c.Check(s.provider.group(unique.ID).Rules, gc.HasLen, 1)
}

func (s *customizerSuite) TestConcurrentAddsSerializedPerLocation(c *gc.C) {
	cust := s.newCustomizer(c)
	s.provisionNode(c, cust, "us-east-1", "i-1")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cust.AddRulesToNode(context.Background(), "us-east-1", "i-1",
				[]sg.Rule{{Protocol: sg.ProtoTCP, FromPort: 9000 + i, ToPort: 9000 + i, CIDR: "0.0.0.0/0"}})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		c.Check(err, jc.ErrorIsNil, gc.Commentf("goroutine %d", i))
	}
}

type registrySuite struct{}

var _ = gc.Suite(&registrySuite{})

func (s *registrySuite) TestSameInstancePerApplication(c *gc.C) {
	provider := newFakeProvider("aws-ec2")
	registry := sg.NewRegistry(func(appID string) (*sg.Customizer, error) {
		return sg.NewCustomizer(sg.CustomizerConfig{
			ApplicationID: appID,
			Provider:      provider,
			Clock:         clock.WallClock,
		})
	})

	first, err := registry.ForApplication("app1")
	c.Assert(err, jc.ErrorIsNil)
	again, err := registry.ForApplication("app1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again, gc.Equals, first)

	other, err := registry.ForApplication("app2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(other, gc.Not(gc.Equals), first)
}

func (s *registrySuite) TestEmptyApplicationRejected(c *gc.C) {
	registry := sg.NewRegistry(func(string) (*sg.Customizer, error) { return nil, nil })
	_, err := registry.ForApplication("")
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
