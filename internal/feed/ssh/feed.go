// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ssh adapts remote shell commands into poll probes. A
// command that runs but exits non-zero is a successful execution of a
// failed command: it is routed to OnFailure, not OnError, and only
// transport problems surface as probe errors.
package ssh

import (
	"context"
	"sort"
	"strings"

	"github.com/juju/loggo/v2"

	"github.com/neykov/brooklyn-server/internal/poller"
)

var logger = loggo.GetLogger("brooklyn.feed.ssh")

// Result is the outcome of one remote command execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a shell command with an environment-variable map on
// a remote machine. A non-zero exit status is reported in Result, not
// as an error; errors are reserved for transport failures.
type Runner interface {
	Run(ctx context.Context, cmd string, env map[string]string) (Result, error)
}

// CommandProbe wraps a command as a probe for the poller.
func CommandProbe(runner Runner, cmd string, env map[string]string) poller.Probe[Result] {
	return func(ctx context.Context) (Result, error) {
		return runner.Run(ctx, cmd, env)
	}
}

// NewPollConfig starts a poll configuration for the command, with the
// command string as its description.
func NewPollConfig(runner Runner, cmd string, env map[string]string) *poller.PollConfig[Result] {
	return poller.NewPollConfig(CommandProbe(runner, cmd, env)).Description(cmd)
}

// NewCommandHandler fills in the default success policy for shell
// command results: exit status zero is success, anything else is a
// failure. Callbacks in h are kept as given.
func NewCommandHandler(h poller.HandlerFuncs[Result]) poller.Handler[Result] {
	if h.CheckSuccessFn == nil {
		h.CheckSuccessFn = func(r Result) bool { return r.ExitCode == 0 }
	}
	return h
}

// exportPrefix renders env as a prefix of shell exports, keys in
// stable order, values single-quoted.
func exportPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString("export ")
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(env[k], "'", `'\''`))
		b.WriteString("'; ")
	}
	return b.String()
}
