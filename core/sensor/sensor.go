// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sensor defines the observable-attribute model: sensors,
// the events raised when their values change, and the listener
// contract consumed by the event hub.
package sensor

import (
	"fmt"
	"time"

	"github.com/juju/clock"
)

// Sensor names a typed observable attribute of a managed entity.
type Sensor struct {
	Name        string
	Description string
}

// Event is an immutable record of a sensor value accepted for an
// entity. Events are broadcast, not transferred; no entity owns an
// event after publication.
type Event struct {
	// Source identifies the entity or target the value belongs to.
	Source string
	// Sensor is the attribute name the value was observed for.
	Sensor string
	// Value is the accepted value.
	Value interface{}
	// Timestamp is wall-clock milliseconds at publication.
	Timestamp int64
}

// NewEvent stamps an event with the current time from clk.
func NewEvent(clk clock.Clock, source, sensorName string, value interface{}) Event {
	return Event{
		Source:    source,
		Sensor:    sensorName,
		Value:     value,
		Timestamp: clk.Now().UnixMilli(),
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s.%s=%v@%s", e.Source, e.Sensor, e.Value,
		time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339Nano))
}

// Listener receives published events. Implementations must tolerate
// concurrent delivery when subscribed to multiple producers.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) { f(e) }
