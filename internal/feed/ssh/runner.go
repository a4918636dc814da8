// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ssh

import (
	"bytes"
	"context"
	"fmt"

	"github.com/juju/errors"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/neykov/brooklyn-server/core/latch"
)

// RunnerConfig holds what SSHRunner needs to reach a machine. The
// latch bounds concurrent sessions against the host; leave it nil for
// unbounded access.
type RunnerConfig struct {
	Host         string
	Port         int
	ClientConfig *cryptossh.ClientConfig
	Latch        latch.ReleaseableLatch
}

// Validate ensures that the config values are valid.
func (c *RunnerConfig) Validate() error {
	if c.Host == "" {
		return errors.NotValidf("missing host")
	}
	if c.ClientConfig == nil {
		return errors.NotValidf("missing client config")
	}
	return nil
}

// SSHRunner executes commands over SSH, one session per call.
type SSHRunner struct {
	cfg  RunnerConfig
	dial func(network, addr string, config *cryptossh.ClientConfig) (sshClient, error)
}

// sshClient is the part of ssh.Client the runner uses.
type sshClient interface {
	NewSession() (*cryptossh.Session, error)
	Close() error
}

// NewRunner returns a runner for the configured host.
func NewRunner(cfg RunnerConfig) (*SSHRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Latch == nil {
		cfg.Latch = latch.Nop()
	}
	return &SSHRunner{
		cfg: cfg,
		dial: func(network, addr string, config *cryptossh.ClientConfig) (sshClient, error) {
			return cryptossh.Dial(network, addr, config)
		},
	}, nil
}

// Run implements Runner. The environment is applied as a prefix of
// shell exports so it works against servers that reject Setenv.
func (r *SSHRunner) Run(ctx context.Context, cmd string, env map[string]string) (Result, error) {
	caller := fmt.Sprintf("ssh %s", r.cfg.Host)
	if err := r.cfg.Latch.Acquire(ctx, caller); err != nil {
		return Result{}, errors.Trace(err)
	}
	defer r.cfg.Latch.Release(caller)

	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	client, err := r.dial("tcp", addr, r.cfg.ClientConfig)
	if err != nil {
		return Result{}, errors.Annotatef(err, "dialling %s", addr)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, errors.Annotatef(err, "opening session to %s", addr)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	full := exportPrefix(env) + cmd
	logger.Debugf("running on %s: %s", addr, full)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(full)
	}()
	select {
	case <-ctx.Done():
		_ = session.Signal(cryptossh.SIGKILL)
		return Result{}, errors.Trace(ctx.Err())
	case err = <-done:
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		exitErr, ok := err.(*cryptossh.ExitError)
		if !ok {
			return Result{}, errors.Annotatef(err, "running command on %s", addr)
		}
		result.ExitCode = exitErr.ExitStatus()
	}
	return result, nil
}
