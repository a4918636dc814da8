// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package poller runs a bounded set of probes against one logical
// target, each on its own fixed-rate schedule, isolating every job's
// failures from its siblings and feeding accepted results through the
// job's handler.
package poller

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/neykov/brooklyn-server/core/duration"
)

var logger = loggo.GetLogger("brooklyn.poller")

// Probe samples external state once. It must honour ctx cancellation
// and be safe to invoke repeatedly, and concurrently with invocations
// of other probes; the poller never invokes one probe concurrently
// with itself.
type Probe[T any] func(ctx context.Context) (T, error)

// Poller schedules probes against a single target. Register all jobs
// before Start; scheduling afterwards is rejected. Stop cancels all
// schedules: no new invocation starts after Stop returns, in-flight
// invocations complete naturally.
type Poller[T any] struct {
	target string
	clock  clock.Clock

	mu      sync.Mutex
	jobs    []*job[T]
	started bool

	tomb tomb.Tomb
}

type job[T any] struct {
	probe       Probe[T]
	handler     Handler[T]
	period      time.Duration // zero means run once
	suppress    bool
	description string

	// lastValue is owned by the job goroutine at comparison time but
	// read under mu from monitoring threads via LastValue.
	mu        sync.Mutex
	lastValue T
	hasLast   bool
}

// New returns a poller for the named target, scheduling on clk.
func New[T any](target string, clk clock.Clock) *Poller[T] {
	return &Poller[T]{target: target, clock: clk}
}

// Schedule registers the job described by cfg.
func (p *Poller[T]) Schedule(cfg *PollConfig[T]) error {
	if err := cfg.validate(); err != nil {
		return errors.Trace(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.Errorf("cannot schedule job on started poller for %q", p.target)
	}
	desc := cfg.description
	if desc == "" {
		desc = cfg.handler.Description()
	}
	p.jobs = append(p.jobs, &job[T]{
		probe:       cfg.probe,
		handler:     cfg.handler,
		period:      cfg.period.Std(),
		suppress:    cfg.suppressDuplicates,
		description: desc,
	})
	return nil
}

// ScheduleAtFixedRate registers a recurring job. The period must be a
// positive interval.
func (p *Poller[T]) ScheduleAtFixedRate(probe Probe[T], handler Handler[T], period duration.Duration) error {
	if !period.Positive() {
		return errors.NotValidf("poll period %q", period)
	}
	return p.Schedule(NewPollConfig(probe).Handler(handler).Period(period))
}

// ScheduleSingle registers a one-shot job, executed once soon after
// Start and never repeated.
func (p *Poller[T]) ScheduleSingle(probe Probe[T], handler Handler[T]) error {
	return p.Schedule(NewPollConfig(probe).Handler(handler))
}

// Start begins executing every registered job on its own schedule.
// Calling Start twice is an error.
func (p *Poller[T]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.Errorf("poller for %q already started", p.target)
	}
	p.started = true
	logger.Debugf("starting poller for %q with %d jobs", p.target, len(p.jobs))
	jobs := p.jobs
	for _, j := range jobs {
		j := j
		p.tomb.Go(func() error {
			p.runJob(j)
			// A finished one-shot job must not bring the tomb down
			// while recurring siblings are still running.
			<-p.tomb.Dying()
			return tomb.ErrDying
		})
	}
	if len(jobs) == 0 {
		p.tomb.Go(func() error {
			<-p.tomb.Dying()
			return tomb.ErrDying
		})
	}
	return nil
}

// Stop cancels all schedules and waits for the job goroutines to
// finish. In-flight probe invocations are not interrupted, but no new
// invocation starts once Stop returns.
func (p *Poller[T]) Stop() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		// Nothing scheduled on the tomb yet; waiting would block on
		// goroutines that were never launched.
		p.tomb.Kill(nil)
		return nil
	}
	p.Kill()
	err := p.Wait()
	if err == tomb.ErrDying {
		return nil
	}
	return err
}

// Kill is part of the worker.Worker interface.
func (p *Poller[T]) Kill() {
	p.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (p *Poller[T]) Wait() error {
	return p.tomb.Wait()
}

// runJob drives one job until the poller dies. Fixed-rate anchoring:
// the next invocation is due one period after the previous invocation
// started. If an invocation overruns its period the next one fires
// immediately on completion and the schedule re-anchors, so a slow
// probe never runs concurrently with itself and never accumulates a
// backlog of missed ticks.
func (p *Poller[T]) runJob(j *job[T]) {
	select {
	case <-p.tomb.Dying():
		return
	default:
	}
	next := p.clock.Now()
	for {
		p.invoke(j)
		if j.period <= 0 {
			return
		}
		next = next.Add(j.period)
		delay := next.Sub(p.clock.Now())
		if delay < 0 {
			next = p.clock.Now()
			delay = 0
		}
		select {
		case <-p.tomb.Dying():
			return
		case <-p.clock.After(delay):
		}
	}
}

// invoke runs one probe invocation and applies the handler policy.
// Anything thrown by the probe or the handler is contained here: it
// is reported through OnError and never reaches sibling jobs or the
// poller's own scheduling.
func (p *Poller[T]) invoke(j *job[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("poll %q panicked: %v", j.description, r)
			logger.Warningf("%v", err)
			func() {
				defer func() { recover() }()
				j.handler.OnError(err)
			}()
		}
	}()

	ctx := p.tomb.Context(context.Background())
	v, err := j.probe(ctx)
	if err != nil {
		j.handler.OnError(err)
		return
	}
	if !j.handler.CheckSuccess(v) {
		j.handler.OnFailure(v)
		return
	}
	if j.suppress && j.equalsLast(v) {
		logger.Tracef("poll %q suppressing duplicate value %v", j.description, v)
		return
	}
	j.setLast(v)
	j.handler.OnSuccess(v)
}

func (j *job[T]) equalsLast(v T) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hasLast && reflect.DeepEqual(j.lastValue, v)
}

func (j *job[T]) setLast(v T) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastValue = v
	j.hasLast = true
}
