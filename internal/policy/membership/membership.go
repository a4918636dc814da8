// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package membership reacts to group membership changes by running a
// shell command on an affected machine. It exists to show what a
// consumer of the event hub looks like: subscribe, act, log failures,
// and never let an error travel back into the hub.
package membership

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/neykov/brooklyn-server/core/events"
	"github.com/neykov/brooklyn-server/core/sensor"
	"github.com/neykov/brooklyn-server/internal/feed/ssh"
)

var logger = loggo.GetLogger("brooklyn.policy.membership")

// Membership sensors published by a group entity. The event value is
// the member's entity ID.
const (
	SensorMemberAdded   = "group.members.added"
	SensorMemberRemoved = "group.members.removed"
	SensorMemberChanged = "group.members.changed"
)

// eventTypes maps a membership sensor to the EVENT_TYPE tag the
// executed command sees in its environment.
var eventTypes = map[string]string{
	SensorMemberAdded:   "ENTITY_ADDED",
	SensorMemberRemoved: "ENTITY_REMOVED",
	SensorMemberChanged: "ENTITY_CHANGED",
}

// ExecutionTarget selects which machine runs the command on a
// membership change.
type ExecutionTarget string

const (
	// TargetEntity runs the command on the group entity itself.
	TargetEntity ExecutionTarget = "entity"
	// TargetMember runs the command on the member that changed.
	TargetMember ExecutionTarget = "member"
	// TargetAllMembers runs the command on every current member.
	TargetAllMembers ExecutionTarget = "all-members"
)

// RunnerSource resolves the command runner for an entity. The policy
// resolves at event time, not construction time, since members come
// and go over the policy's lifetime.
type RunnerSource interface {
	RunnerFor(entityID string) (ssh.Runner, error)
}

// Config holds the policy's wiring.
type Config struct {
	Hub *events.Hub
	// Group is the entity whose membership sensors the policy follows.
	Group string
	// Command runs on each membership change with EVENT_TYPE and
	// MEMBER_ID exported in its environment.
	Command string
	// Target defaults to TargetMember.
	Target  ExecutionTarget
	Runners RunnerSource
	// Members enumerates current member IDs; required only for
	// TargetAllMembers.
	Members func() []string
}

// Validate ensures that the config values are valid.
func (c *Config) Validate() error {
	if c.Hub == nil {
		return errors.NotValidf("missing hub")
	}
	if c.Group == "" {
		return errors.NotValidf("missing group")
	}
	if c.Command == "" {
		return errors.NotValidf("missing command")
	}
	if c.Runners == nil {
		return errors.NotValidf("missing runner source")
	}
	switch c.Target {
	case "", TargetEntity, TargetMember, TargetAllMembers:
	default:
		return errors.NotValidf("execution target %q", c.Target)
	}
	if c.Target == TargetAllMembers && c.Members == nil {
		return errors.NotValidf("target all-members without a member enumerator")
	}
	return nil
}

// Policy runs a command in response to membership-change events.
// Errors from command execution are logged and swallowed; a failing
// member must not block notifications for its peers.
type Policy struct {
	config Config
	tomb   tomb.Tomb
	unsubs []events.Unsubscriber
}

// NewPolicy subscribes to the group's membership sensors and starts
// reacting. Stop it with Kill and Wait.
func NewPolicy(config Config) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Target == "" {
		config.Target = TargetMember
	}
	p := &Policy{config: config}
	for _, sensorName := range []string{SensorMemberAdded, SensorMemberRemoved, SensorMemberChanged} {
		eventType := eventTypes[sensorName]
		p.unsubs = append(p.unsubs, config.Hub.Subscribe(config.Group, sensorName,
			sensor.ListenerFunc(func(e sensor.Event) {
				p.onMembershipEvent(eventType, e)
			})))
	}
	p.tomb.Go(func() error {
		<-p.tomb.Dying()
		for _, unsub := range p.unsubs {
			unsub()
		}
		return tomb.ErrDying
	})
	return p, nil
}

// Kill is part of the worker.Worker interface.
func (p *Policy) Kill() {
	p.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (p *Policy) Wait() error {
	return p.tomb.Wait()
}

func (p *Policy) onMembershipEvent(eventType string, e sensor.Event) {
	select {
	case <-p.tomb.Dying():
		return
	default:
	}
	memberID, ok := e.Value.(string)
	if !ok {
		logger.Warningf("ignoring membership event with %T value from %s", e.Value, e.Source)
		return
	}
	logger.Debugf("%s on %s: member %s", eventType, e.Source, memberID)
	for _, target := range p.targets(memberID) {
		p.runCommand(target, eventType, memberID)
	}
}

func (p *Policy) targets(memberID string) []string {
	switch p.config.Target {
	case TargetEntity:
		return []string{p.config.Group}
	case TargetAllMembers:
		return p.config.Members()
	default:
		return []string{memberID}
	}
}

func (p *Policy) runCommand(target, eventType, memberID string) {
	runner, err := p.config.Runners.RunnerFor(target)
	if err != nil {
		logger.Errorf("no runner for %s: %v", target, err)
		return
	}
	env := map[string]string{
		"EVENT_TYPE": eventType,
		"MEMBER_ID":  memberID,
	}
	result, err := runner.Run(p.tomb.Context(nil), p.config.Command, env)
	if err != nil {
		logger.Errorf("running %q on %s for %s: %v", p.config.Command, target, eventType, err)
		return
	}
	if result.ExitCode != 0 {
		logger.Warningf("command %q on %s exited %d: %s",
			p.config.Command, target, result.ExitCode, summarize(result.Stderr))
		return
	}
	logger.Debugf("command %q on %s succeeded", p.config.Command, target)
}

func summarize(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:max], len(s))
}
