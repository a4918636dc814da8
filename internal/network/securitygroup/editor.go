// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("brooklyn.securitygroup")

const (
	defaultRetryAttempts = 10
	retryBaseDelay       = 64 * time.Millisecond
	retryMaxDelay        = 30 * time.Second
)

// EditorConfig configures an Editor for one location.
type EditorConfig struct {
	Provider Provider
	Location string
	// Retryable classifies a provider error as transient. Errors it
	// rejects propagate immediately. Defaults to NeverRetry.
	Retryable func(error) bool
	Clock     clock.Clock
	// Attempts bounds the retry loop; defaults to 10. The doubling
	// backoff starts at 64ms and is capped at 30s.
	Attempts int
}

// Validate ensures that the config values are valid.
func (c *EditorConfig) Validate() error {
	if c.Provider == nil {
		return errors.NotValidf("missing provider")
	}
	if c.Location == "" {
		return errors.NotValidf("missing location")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing clock")
	}
	return nil
}

// Editor performs read-modify-write operations against the remote
// security-group API for one location. It does not serialize callers;
// the Customizer holds the per-location lock around every mutating
// cycle.
type Editor struct {
	provider  Provider
	location  string
	retryable func(error) bool
	clock     clock.Clock
	attempts  int
}

// NewEditor returns an editor for cfg.Location.
func NewEditor(cfg EditorConfig) (*Editor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Retryable == nil {
		cfg.Retryable = NeverRetry
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultRetryAttempts
	}
	return &Editor{
		provider:  cfg.Provider,
		location:  cfg.Location,
		retryable: cfg.Retryable,
		clock:     cfg.Clock,
		attempts:  cfg.Attempts,
	}, nil
}

// Location returns the location this editor mutates.
func (e *Editor) Location() string {
	return e.location
}

// ProviderID returns the provider identifier, e.g. "aws-ec2".
func (e *Editor) ProviderID() string {
	return e.provider.ID()
}

// CreateSecurityGroup creates the named group in the editor's
// location. If the remote already has a group of that name the
// existing group is returned; "already exists" is success here, not
// failure.
func (e *Editor) CreateSecurityGroup(ctx context.Context, name string) (SecurityGroup, error) {
	logger.Debugf("creating security group %q in %s", name, e.location)
	var group SecurityGroup
	err := e.withRetry(ctx, "create group "+name, func() error {
		g, err := e.provider.CreateGroup(ctx, name, e.location)
		if IsDuplicateGroup(err) {
			logger.Infof("security group %q already exists in %s; using it", name, e.location)
			existing, ok, ferr := e.FindByName(ctx, name)
			if ferr != nil {
				return errors.Trace(ferr)
			}
			if !ok {
				return errors.NotFoundf("existing security group %q in %s", name, e.location)
			}
			group = existing
			return nil
		}
		if err != nil {
			return errors.Trace(err)
		}
		group = g
		return nil
	})
	return group, errors.Trace(err)
}

// FindByName looks the group up among those in the editor's location.
// Matching is by name suffix, since some provider toolchains prefix
// group names with a namespace of their own.
func (e *Editor) FindByName(ctx context.Context, name string) (SecurityGroup, bool, error) {
	groups, err := e.provider.GroupsInLocation(ctx, e.location)
	if err != nil {
		return SecurityGroup{}, false, errors.Trace(err)
	}
	for _, g := range groups {
		if strings.HasSuffix(g.Name, name) {
			return g, true, nil
		}
	}
	return SecurityGroup{}, false, nil
}

// GroupsForNode lists the groups attached to a node.
func (e *Editor) GroupsForNode(ctx context.Context, nodeID string) ([]SecurityGroup, error) {
	groups, err := e.provider.GroupsForNode(ctx, nodeID)
	return groups, errors.Trace(err)
}

// AddRule applies one ingress rule to the group. A nil result with a
// nil error means the rule was already present and nothing changed.
func (e *Editor) AddRule(ctx context.Context, group SecurityGroup, rule Rule) (*SecurityGroup, error) {
	logger.Debugf("adding to %s: %s", group, rule)
	var updated *SecurityGroup
	err := e.withRetry(ctx, "add rule to "+group.Name, func() error {
		g, err := e.provider.AddRule(ctx, group, rule)
		if IsDuplicateRule(err) {
			logger.Infof("rule already present on %s; continuing: %s", group, rule)
			updated = nil
			return nil
		}
		if err != nil {
			return errors.Trace(err)
		}
		updated = &g
		return nil
	})
	return updated, errors.Trace(err)
}

// AddRules applies the rules in order. On error the group keeps every
// rule applied before the failure; callers must expect partial
// application and use idempotent, order-independent rule sets.
func (e *Editor) AddRules(ctx context.Context, group SecurityGroup, rules []Rule) (SecurityGroup, error) {
	for _, rule := range rules {
		updated, err := e.AddRule(ctx, group, rule)
		if err != nil {
			return group, errors.Trace(err)
		}
		if updated != nil {
			group = *updated
		}
	}
	return group, nil
}

// RemoveRule revokes one ingress rule from the group.
func (e *Editor) RemoveRule(ctx context.Context, group SecurityGroup, rule Rule) (SecurityGroup, error) {
	logger.Debugf("removing from %s: %s", group, rule)
	var updated SecurityGroup
	err := e.withRetry(ctx, "remove rule from "+group.Name, func() error {
		g, err := e.provider.RemoveRule(ctx, group, rule)
		if err != nil {
			return errors.Trace(err)
		}
		updated = g
		return nil
	})
	if err != nil {
		return group, errors.Trace(err)
	}
	return updated, nil
}

// RemoveRules revokes the rules in order, with the same partial
// application contract as AddRules.
func (e *Editor) RemoveRules(ctx context.Context, group SecurityGroup, rules []Rule) (SecurityGroup, error) {
	for _, rule := range rules {
		g, err := e.RemoveRule(ctx, group, rule)
		if err != nil {
			return group, errors.Trace(err)
		}
		group = g
	}
	return group, nil
}

// withRetry runs op, retrying errors the classifier accepts with a
// doubling backoff from 64ms, up to the configured attempt count.
// Exhausting the attempts is a terminal error wrapping the last
// cause.
func (e *Editor) withRetry(ctx context.Context, what string, op func() error) error {
	err := retry.Call(retry.CallArgs{
		Clock:       e.clock,
		Delay:       retryBaseDelay,
		MaxDelay:    retryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Attempts:    e.attempts,
		Func:        op,
		IsFatalError: func(err error) bool {
			return !e.retryable(err)
		},
		NotifyFunc: func(lastError error, attempt int) {
			logger.Debugf("attempt %d to %s failed: %v", attempt, what, lastError)
		},
		Stop: ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) {
		return errors.Annotatef(retry.LastError(err), "repeated errors from provider; giving up on %s", what)
	}
	return errors.Trace(err)
}
