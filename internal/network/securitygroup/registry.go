// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package securitygroup

import (
	"sync"

	"github.com/juju/errors"
)

// Registry hands out one Customizer per application. It is an
// explicit object owned by the orchestrator and passed to whoever
// needs a customizer; there is no process-wide lookup, so tests and
// tenants cannot leak into each other.
type Registry struct {
	newCustomizer func(applicationID string) (*Customizer, error)

	mu          sync.Mutex
	customizers map[string]*Customizer
}

// NewRegistry returns a registry creating customizers with factory.
func NewRegistry(factory func(applicationID string) (*Customizer, error)) *Registry {
	return &Registry{
		newCustomizer: factory,
		customizers:   make(map[string]*Customizer),
	}
}

// ForApplication returns the application's customizer, creating it on
// first use. Repeated calls with one application ID return the same
// instance.
func (r *Registry) ForApplication(applicationID string) (*Customizer, error) {
	if applicationID == "" {
		return nil, errors.NotValidf("empty application ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.customizers[applicationID]; ok {
		return c, nil
	}
	c, err := r.newCustomizer(applicationID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.customizers[applicationID] = c
	return c, nil
}
