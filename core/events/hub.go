// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package events exposes the sensor-event subscription API. Producers
// publish accepted sensor values; listeners subscribe by source and
// sensor name, with either side of the filter left open as a
// wildcard. Delivery order across different producers is not defined;
// consumers needing a global order must sort by event timestamp.
package events

import (
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/neykov/brooklyn-server/core/sensor"
)

var logger = loggo.GetLogger("brooklyn.events")

// Unsubscriber detaches a subscription when called. Safe to call more
// than once.
type Unsubscriber func()

// Hub broadcasts sensor events to subscribed listeners. Each listener
// is served by the underlying hub on its own goroutine, so a slow
// listener does not hold up producers or its peers.
type Hub struct {
	hub *pubsub.SimpleHub
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("brooklyn.events.internal"),
		}),
	}
}

// Subscribe attaches listener to events matching source and
// sensorName; an empty source or sensorName matches everything on
// that side. The returned Unsubscriber detaches the listener.
func (h *Hub) Subscribe(source, sensorName string, listener sensor.Listener) Unsubscriber {
	unsub := h.hub.Subscribe(topic(source, sensorName), func(_ string, data interface{}) {
		event, ok := data.(sensor.Event)
		if !ok {
			logger.Warningf("dropping non-event payload %T on hub", data)
			return
		}
		listener.OnEvent(event)
	})
	return Unsubscriber(unsub)
}

// Publish broadcasts the event. It does not block on delivery; the
// returned channel closes once every matching listener has been
// handed the event.
func (h *Hub) Publish(e sensor.Event) <-chan struct{} {
	// One publication per filter shape, so a subscriber holding any
	// one of the four topics sees the event exactly once.
	h.hub.Publish(topic(e.Source, ""), e)
	h.hub.Publish(topic("", e.Sensor), e)
	h.hub.Publish(topic("", ""), e)
	wait := h.hub.Publish(topic(e.Source, e.Sensor), e)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	return done
}

func topic(source, sensorName string) string {
	if source == "" {
		source = "*"
	}
	if sensorName == "" {
		sensorName = "*"
	}
	return "sensor#" + source + "#" + sensorName
}
