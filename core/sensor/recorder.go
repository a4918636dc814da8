// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sensor

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Recorder is an event listener that keeps every event it receives,
// in arrival order, together with a context label captured at receipt
// time so tests can correlate which execution context delivered which
// event. It grows without bound and is cleared only by Clear, so it
// is a test sink; production listeners must not retain history this
// way.
//
// With duplicate suppression enabled an event whose value equals the
// previously recorded one is dropped. This is independent of any
// suppression the producer applies; both may be in effect.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	contexts  []string
	lastValue interface{}

	suppressDuplicates bool
	contextFn          func() string
}

// NewRecorder returns an empty recorder.
func NewRecorder(suppressDuplicates bool) *Recorder {
	return &Recorder{suppressDuplicates: suppressDuplicates}
}

// SetContextFunc installs the hook used to label the delivery context
// of each event. The default label is empty.
func (r *Recorder) SetContextFunc(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextFn = fn
}

// OnEvent implements Listener. Safe for concurrent delivery.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suppressDuplicates && len(r.events) > 0 && reflect.DeepEqual(r.lastValue, e.Value) {
		return
	}
	var label string
	if r.contextFn != nil {
		label = r.contextFn()
	}
	r.events = append(r.events, e)
	r.contexts = append(r.contexts, label)
	r.lastValue = e.Value
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Contexts returns the delivery-context labels, parallel to Events.
func (r *Recorder) Contexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.contexts...)
}

// Values returns the recorded event values in arrival order.
func (r *Recorder) Values() []interface{} {
	events := r.Events()
	values := make([]interface{}, len(events))
	for i, e := range events {
		values[i] = e.Value
	}
	return values
}

// ValuesSortedByTimestamp returns the recorded values ordered by the
// time at which the events were stamped, not the order of arrival.
func (r *Recorder) ValuesSortedByTimestamp() []interface{} {
	events := r.Events()
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	values := make([]interface{}, len(events))
	for i, e := range events {
		values[i] = e.Value
	}
	return values
}

// HasEventMatching reports whether any recorded event satisfies pred.
func (r *Recorder) HasEventMatching(pred func(Event) bool) bool {
	for _, e := range r.Events() {
		if pred(e) {
			return true
		}
	}
	return false
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Clear discards all recorded events and context labels.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.contexts = nil
	r.lastValue = nil
}

func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("recorder[size=%d]", len(r.events))
}
