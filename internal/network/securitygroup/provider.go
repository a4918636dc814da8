// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

import (
	"context"
	"fmt"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Provider is the consumed remote compute/security API. The error
// taxonomy matters: duplicate-group and duplicate-rule conditions
// must be reported as ProviderError with the matching code so the
// editor can treat them as success-with-no-change.
type Provider interface {
	// ID identifies the provider, e.g. "aws-ec2" or "openstack-nova";
	// it keys the quirk table.
	ID() string
	CreateGroup(ctx context.Context, name, location string) (SecurityGroup, error)
	GroupsForNode(ctx context.Context, nodeID string) ([]SecurityGroup, error)
	GroupsInLocation(ctx context.Context, location string) ([]SecurityGroup, error)
	AddRule(ctx context.Context, group SecurityGroup, rule Rule) (SecurityGroup, error)
	RemoveRule(ctx context.Context, group SecurityGroup, rule Rule) (SecurityGroup, error)
}

// Provider error codes, following the EC2 error reference; other
// providers map their conditions onto these when constructing a
// ProviderError.
const (
	CodeDuplicateRule       = "InvalidPermission.Duplicate"
	CodeDuplicateGroup      = "InvalidGroup.Duplicate"
	CodeGroupInUse          = "InvalidGroup.InUse"
	CodeDependencyViolation = "DependencyViolation"
	CodeRateLimited         = "RequestLimitExceeded"
)

// ProviderError is a remote API failure with a provider error code.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error %s", e.Code)
	}
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

func providerCode(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// IsDuplicateRule reports whether err says the rule already exists.
func IsDuplicateRule(err error) bool {
	return providerCode(err) == CodeDuplicateRule
}

// IsDuplicateGroup reports whether err says a group of that name
// already exists in the location.
func IsDuplicateGroup(err error) bool {
	return providerCode(err) == CodeDuplicateGroup
}

var awsRetryableCodes = set.NewStrings(
	CodeGroupInUse,
	CodeDependencyViolation,
	CodeRateLimited,
)

// AWSRetryable classifies transient/conflict EC2 errors that a
// read-modify-write cycle should retry.
func AWSRetryable(err error) bool {
	return awsRetryableCodes.Contains(providerCode(err))
}

// NeverRetry is the conservative default classification.
func NeverRetry(error) bool {
	return false
}
