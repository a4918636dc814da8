// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package poller

import (
	"github.com/juju/errors"

	"github.com/neykov/brooklyn-server/core/duration"
)

// PollConfig describes one scheduled probe: what to run, how often,
// and the policy applied to its results. Zero Period means the probe
// runs once, soon after the poller starts. Once scheduled the
// configuration is fixed; schedule a fresh job to change behaviour.
type PollConfig[T any] struct {
	probe              Probe[T]
	handler            Handler[T]
	period             duration.Duration
	suppressDuplicates bool
	description        string
}

// NewPollConfig starts a configuration for probe.
func NewPollConfig[T any](probe Probe[T]) *PollConfig[T] {
	return &PollConfig[T]{probe: probe}
}

// Period sets the fixed-rate interval between invocation starts.
func (c *PollConfig[T]) Period(d duration.Duration) *PollConfig[T] {
	c.period = d
	return c
}

// Handler sets the result policy for the job.
func (c *PollConfig[T]) Handler(h Handler[T]) *PollConfig[T] {
	c.handler = h
	return c
}

// SuppressDuplicates discards a value equal to the previously
// accepted one instead of delivering it to OnSuccess.
func (c *PollConfig[T]) SuppressDuplicates(suppress bool) *PollConfig[T] {
	c.suppressDuplicates = suppress
	return c
}

// Description labels the job in logs and errors.
func (c *PollConfig[T]) Description(d string) *PollConfig[T] {
	c.description = d
	return c
}

func (c *PollConfig[T]) validate() error {
	if c.probe == nil {
		return errors.NotValidf("poll config without probe")
	}
	if c.handler == nil {
		return errors.NotValidf("poll config without handler")
	}
	if c.period.IsForever() {
		return errors.NotValidf("poll period %q", c.period)
	}
	return nil
}
