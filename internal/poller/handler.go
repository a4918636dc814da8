// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package poller

import (
	"github.com/juju/clock"

	"github.com/neykov/brooklyn-server/core/events"
	"github.com/neykov/brooklyn-server/core/sensor"
)

// Handler is the policy attached to a scheduled probe. CheckSuccess
// decides whether a returned value is a usable result or an
// application-level failure; the On callbacks receive the outcome of
// each invocation. All four run on the job's own goroutine and must
// not block indefinitely; a slow handler delays the next poll of that
// job only.
type Handler[T any] interface {
	CheckSuccess(T) bool
	OnSuccess(T)
	OnFailure(T)
	OnError(error)
	Description() string
}

// HandlerFuncs assembles a Handler from optional callbacks. A nil
// CheckSuccessFn accepts every value; other nil callbacks do nothing.
type HandlerFuncs[T any] struct {
	CheckSuccessFn func(T) bool
	OnSuccessFn    func(T)
	OnFailureFn    func(T)
	OnErrorFn      func(error)
	Desc           string
}

func (h HandlerFuncs[T]) CheckSuccess(v T) bool {
	if h.CheckSuccessFn == nil {
		return true
	}
	return h.CheckSuccessFn(v)
}

func (h HandlerFuncs[T]) OnSuccess(v T) {
	if h.OnSuccessFn != nil {
		h.OnSuccessFn(v)
	}
}

func (h HandlerFuncs[T]) OnFailure(v T) {
	if h.OnFailureFn != nil {
		h.OnFailureFn(v)
	}
}

func (h HandlerFuncs[T]) OnError(err error) {
	if h.OnErrorFn != nil {
		h.OnErrorFn(err)
	}
}

func (h HandlerFuncs[T]) Description() string {
	if h.Desc == "" {
		return "anonymous handler"
	}
	return h.Desc
}

// NewPublishingHandler returns a handler that turns every accepted
// value into a sensor event on the hub. Failures and errors are
// logged against the source entity but produce no event.
func NewPublishingHandler[T any](hub *events.Hub, clk clock.Clock, source, sensorName string) Handler[T] {
	return HandlerFuncs[T]{
		OnSuccessFn: func(v T) {
			hub.Publish(sensor.NewEvent(clk, source, sensorName, v))
		},
		OnFailureFn: func(v T) {
			logger.Debugf("poll of %s.%s returned failure value %v", source, sensorName, v)
		},
		OnErrorFn: func(err error) {
			logger.Debugf("poll of %s.%s errored: %v", source, sensorName, err)
		},
		Desc: source + "." + sensorName,
	}
}
