// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

import (
	"context"
	"strings"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/juju/errors"
)

// CustomizerConfig configures the per-application reconciler.
type CustomizerConfig struct {
	ApplicationID string
	Provider      Provider
	Clock         clock.Clock
	// Retryable classifies transient provider errors; see EditorConfig.
	Retryable func(error) bool
	// SSHCidr is the address block allowed to reach port 22 on the
	// shared group. Defaults to the whole of IPv4; restricting it
	// risks cutting the orchestrator off after a failover to another
	// address.
	SSHCidr string
}

// Validate ensures that the config values are valid.
func (c *CustomizerConfig) Validate() error {
	if c.ApplicationID == "" {
		return errors.NotValidf("missing application ID")
	}
	if c.Provider == nil {
		return errors.NotValidf("missing provider")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing clock")
	}
	return nil
}

// Customizer reconciles the security groups of one application's
// machines. Two groups per machine are expected: a group shared by
// all of the application's machines in a location, and one unique to
// the machine. Both are cached; the caches repopulate from the remote
// on a miss, so invalidating them wholesale (a cold restart) loses
// nothing.
//
// Every mutating operation takes the per-location lock. The remote
// offers no atomic check-and-set on group membership, so concurrent
// read-modify-write cycles against one location would lose updates or
// double-apply rules; rules for unrelated locations proceed in
// parallel.
type Customizer struct {
	appID     string
	provider  Provider
	clock     clock.Clock
	retryable func(error) bool
	sshCidr   string

	locationLocks *kmutex.Kmutex

	mu           sync.Mutex
	sharedGroups map[string]SecurityGroup // by location
	uniqueGroups map[string]SecurityGroup // by node ID
}

// NewCustomizer returns a reconciler for the application.
func NewCustomizer(cfg CustomizerConfig) (*Customizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Retryable == nil {
		cfg.Retryable = NeverRetry
	}
	if cfg.SSHCidr == "" {
		cfg.SSHCidr = "0.0.0.0/0"
	}
	return &Customizer{
		appID:         cfg.ApplicationID,
		provider:      cfg.Provider,
		clock:         cfg.Clock,
		retryable:     cfg.Retryable,
		sshCidr:       cfg.SSHCidr,
		locationLocks: kmutex.New(),
		sharedGroups:  make(map[string]SecurityGroup),
		uniqueGroups:  make(map[string]SecurityGroup),
	}, nil
}

// SharedGroupName is the name of the group shared by all of the
// application's machines in one location.
func (c *Customizer) SharedGroupName() string {
	return "brooklyn-" + strings.ToLower(c.appID) + "-shared"
}

func (c *Customizer) editor(location string) (*Editor, error) {
	return NewEditor(EditorConfig{
		Provider:  c.provider,
		Location:  location,
		Retryable: c.retryable,
		Clock:     c.clock,
	})
}

// ReconcileSharedGroup returns the shared group for the location,
// creating it with its bootstrap rules on first use: SSH from the
// configured CIDR plus full intra-group TCP/UDP (and ICMP where the
// provider allows group-scoped ICMP).
func (c *Customizer) ReconcileSharedGroup(ctx context.Context, location string) (SecurityGroup, error) {
	c.locationLocks.Lock(location)
	defer c.locationLocks.Unlock(location)
	return c.reconcileSharedGroupLocked(ctx, location)
}

func (c *Customizer) reconcileSharedGroupLocked(ctx context.Context, location string) (SecurityGroup, error) {
	c.mu.Lock()
	group, ok := c.sharedGroups[location]
	c.mu.Unlock()
	if ok {
		return group, nil
	}

	editor, err := c.editor(location)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	name := c.SharedGroupName()
	group, found, err := editor.FindByName(ctx, name)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	if found {
		logger.Infof("found existing shared group %q in %s for app %s", name, location, c.appID)
	} else {
		logger.Infof("creating shared group %q in %s for app %s", name, location, c.appID)
		group, err = c.createSharedGroup(ctx, editor, name)
		if err != nil {
			return SecurityGroup{}, errors.Trace(err)
		}
	}
	c.mu.Lock()
	c.sharedGroups[location] = group
	c.mu.Unlock()
	return group, nil
}

func (c *Customizer) createSharedGroup(ctx context.Context, editor *Editor, name string) (SecurityGroup, error) {
	group, err := editor.CreateSecurityGroup(ctx, name)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	rs := NewRuleSet(c.provider.ID())
	rules := append(rs.EverythingFromGroup(group), rs.SSHFromCIDR(c.sshCidr))
	group, err = editor.AddRules(ctx, group, rules)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	return group, nil
}

// AddRulesToNode applies the rules to the node's unique group,
// skipping rules the group already holds. It returns the group as
// last known after the update.
func (c *Customizer) AddRulesToNode(ctx context.Context, location, nodeID string, rules []Rule) (SecurityGroup, error) {
	c.locationLocks.Lock(location)
	defer c.locationLocks.Unlock(location)

	editor, err := c.editor(location)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	group, err := c.uniqueGroupLocked(ctx, editor, nodeID)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	var missing []Rule
	for _, rule := range rules {
		if !group.HasRule(rule) {
			missing = append(missing, rule)
		}
	}
	group, err = editor.AddRules(ctx, group, missing)
	if err != nil {
		// Previously cached group references stay valid; a later call
		// retries the remainder.
		return group, errors.Trace(err)
	}
	c.mu.Lock()
	c.uniqueGroups[nodeID] = group
	c.mu.Unlock()
	return group, nil
}

// RemoveRulesFromNode revokes the rules from the node's unique group.
func (c *Customizer) RemoveRulesFromNode(ctx context.Context, location, nodeID string, rules []Rule) error {
	c.locationLocks.Lock(location)
	defer c.locationLocks.Unlock(location)

	editor, err := c.editor(location)
	if err != nil {
		return errors.Trace(err)
	}
	group, err := c.uniqueGroupLocked(ctx, editor, nodeID)
	if err != nil {
		return errors.Trace(err)
	}
	group, err = editor.RemoveRules(ctx, group, rules)
	if err != nil {
		return errors.Trace(err)
	}
	c.mu.Lock()
	c.uniqueGroups[nodeID] = group
	c.mu.Unlock()
	return nil
}

// uniqueGroupLocked returns the node's unique group, consulting the
// cache first and otherwise rediscovering it from the groups attached
// to the node. Rediscovery also restores the shared-group cache entry
// when it recognises the shared group among the node's groups, which
// is what happens after the orchestrator restarts against an existing
// application.
func (c *Customizer) uniqueGroupLocked(ctx context.Context, editor *Editor, nodeID string) (SecurityGroup, error) {
	c.mu.Lock()
	group, ok := c.uniqueGroups[nodeID]
	c.mu.Unlock()
	if ok {
		return group, nil
	}

	groups, err := editor.GroupsForNode(ctx, nodeID)
	if err != nil {
		return SecurityGroup{}, errors.Trace(err)
	}
	if len(groups) == 0 {
		return SecurityGroup{}, errors.NotFoundf("security groups on node %q", nodeID)
	}

	sharedName := c.SharedGroupName()
	var unique *SecurityGroup
	var shared *SecurityGroup
	for i := range groups {
		g := groups[i]
		if strings.HasSuffix(g.Name, sharedName) {
			shared = &g
		} else if unique == nil {
			unique = &g
		} else {
			return SecurityGroup{}, errors.Errorf(
				"cannot determine the unique group on node %q: found %d candidates", nodeID, len(groups)-1)
		}
	}
	if unique == nil {
		return SecurityGroup{}, errors.NotFoundf("machine-unique security group on node %q", nodeID)
	}

	c.mu.Lock()
	c.uniqueGroups[nodeID] = *unique
	if shared != nil {
		if _, ok := c.sharedGroups[shared.Location]; !ok {
			logger.Infof("restored shared group for app %s in %s: %s", c.appID, shared.Location, shared)
			c.sharedGroups[shared.Location] = *shared
		}
	}
	c.mu.Unlock()
	logger.Infof("loaded unique security group for node %q (app %s): %s", nodeID, c.appID, unique)
	return *unique, nil
}

// ClearCaches drops both group caches, simulating a cold restart.
// The next operation rediscovers everything from the provider.
func (c *Customizer) ClearCaches() {
	logger.Infof("clearing security group caches for app %s", c.appID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sharedGroups = make(map[string]SecurityGroup)
	c.uniqueGroups = make(map[string]SecurityGroup)
}
