// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package coerce converts loosely-typed configuration values (the
// kind a blueprint or YAML layer hands over as interface{}) into the
// concrete types components expect. A Coercer carries a registry of
// conversions keyed by (from, to) type pair; built-in strategies
// handle assignability, primitives, durations, times and container
// recursion, and registered adapters take precedence over all of them.
package coerce

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"

	"github.com/neykov/brooklyn-server/core/duration"
)

// Func converts one value. It receives a value of the registered
// source type and returns a value of the registered target type.
type Func func(value interface{}) (interface{}, error)

type pair struct {
	from, to reflect.Type
}

// Coercer converts values between types. Safe for concurrent use;
// registration is expected at wiring time but is also safe later.
type Coercer struct {
	mu       sync.RWMutex
	adapters map[pair]Func
}

// New returns a coercer with the standard adapters registered:
// duration spellings ("5s", bare millisecond integers, "forever"),
// and RFC3339 timestamps.
func New() *Coercer {
	c := &Coercer{adapters: make(map[pair]Func)}
	Register(c, func(s string) (duration.Duration, error) {
		return duration.Parse(s)
	})
	Register(c, func(s string) (time.Duration, error) {
		d, err := duration.Parse(s)
		return d.Std(), errors.Trace(err)
	})
	Register(c, func(ms int) (duration.Duration, error) {
		return duration.Of(time.Duration(ms) * time.Millisecond), nil
	})
	Register(c, func(ms int64) (duration.Duration, error) {
		return duration.Of(time.Duration(ms) * time.Millisecond), nil
	})
	Register(c, func(s string) (time.Time, error) {
		out, err := schema.Time().Coerce(s, nil)
		if err != nil {
			return time.Time{}, errors.NewNotValid(err, fmt.Sprintf("time %q", s))
		}
		return out.(time.Time), nil
	})
	return c
}

// Register adds a conversion from F to T, replacing any previous one
// for that pair.
func Register[F, T any](c *Coercer, fn func(F) (T, error)) {
	from := reflect.TypeOf((*F)(nil)).Elem()
	to := reflect.TypeOf((*T)(nil)).Elem()
	c.register(from, to, func(v interface{}) (interface{}, error) {
		out, err := fn(v.(F))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return out, nil
	})
}

func (c *Coercer) register(from, to reflect.Type, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[pair{from, to}] = fn
}

func (c *Coercer) adapter(from, to reflect.Type) Func {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if fn, ok := c.adapters[pair{from, to}]; ok {
		return fn
	}
	// A registered interface source matches any implementation.
	for p, fn := range c.adapters {
		if p.to == to && p.from.Kind() == reflect.Interface && from.Implements(p.from) {
			return fn
		}
	}
	return nil
}

// To coerces value into T.
func To[T any](c *Coercer, value interface{}) (T, error) {
	var zero T
	out, err := c.Coerce(value, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, errors.Trace(err)
	}
	return out.(T), nil
}

// Coerce converts value into the target type. Registered adapters are
// consulted after assignability and before the kind-based strategies.
func (c *Coercer) Coerce(value interface{}, target reflect.Type) (interface{}, error) {
	if target == nil {
		return nil, errors.NotValidf("nil target type")
	}
	if value == nil {
		switch target.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
			return reflect.Zero(target).Interface(), nil
		}
		return nil, errors.NotValidf("nil value for %s", target)
	}
	vt := reflect.TypeOf(value)
	if vt.AssignableTo(target) {
		return value, nil
	}
	if fn := c.adapter(vt, target); fn != nil {
		out, err := fn(value)
		return out, errors.Trace(err)
	}

	switch target.Kind() {
	case reflect.Bool:
		out, err := schema.Bool().Coerce(value, nil)
		if err != nil {
			return nil, notValid(err, value, target)
		}
		return convert(out, target), nil
	case reflect.String:
		if vt.Kind() == reflect.String {
			return convert(value, target), nil
		}
		out, err := schema.Stringified().Coerce(value, nil)
		if err != nil {
			return nil, notValid(err, value, target)
		}
		return convert(out, target), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out, err := schema.ForceInt().Coerce(value, nil)
		if err != nil {
			return nil, notValid(err, value, target)
		}
		return convert(out, target), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out, err := schema.ForceUint().Coerce(value, nil)
		if err != nil {
			return nil, notValid(err, value, target)
		}
		return convert(out, target), nil
	case reflect.Float32, reflect.Float64:
		return c.coerceFloat(value, vt, target)
	case reflect.Slice:
		return c.coerceSlice(value, vt, target)
	case reflect.Map:
		return c.coerceMap(value, vt, target)
	case reflect.Ptr:
		out, err := c.Coerce(value, target.Elem())
		if err != nil {
			return nil, errors.Trace(err)
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(reflect.ValueOf(out))
		return p.Interface(), nil
	}
	return nil, errors.NotValidf("coercing %T into %s", value, target)
}

func (c *Coercer) coerceFloat(value interface{}, vt, target reflect.Type) (interface{}, error) {
	switch vt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return convert(value, target), nil
	case reflect.String:
		f, err := strconv.ParseFloat(reflect.ValueOf(value).String(), 64)
		if err != nil {
			return nil, notValid(err, value, target)
		}
		return convert(f, target), nil
	}
	return nil, errors.NotValidf("coercing %T into %s", value, target)
}

func (c *Coercer) coerceSlice(value interface{}, vt, target reflect.Type) (interface{}, error) {
	if vt.Kind() != reflect.Slice && vt.Kind() != reflect.Array {
		return nil, errors.NotValidf("coercing %T into %s", value, target)
	}
	in := reflect.ValueOf(value)
	out := reflect.MakeSlice(target, in.Len(), in.Len())
	for i := 0; i < in.Len(); i++ {
		elem, err := c.Coerce(in.Index(i).Interface(), target.Elem())
		if err != nil {
			return nil, errors.Annotatef(err, "element %d", i)
		}
		out.Index(i).Set(reflect.ValueOf(elem))
	}
	return out.Interface(), nil
}

func (c *Coercer) coerceMap(value interface{}, vt, target reflect.Type) (interface{}, error) {
	if vt.Kind() != reflect.Map {
		return nil, errors.NotValidf("coercing %T into %s", value, target)
	}
	in := reflect.ValueOf(value)
	out := reflect.MakeMapWithSize(target, in.Len())
	iter := in.MapRange()
	for iter.Next() {
		key, err := c.Coerce(iter.Key().Interface(), target.Key())
		if err != nil {
			return nil, errors.Annotatef(err, "key %v", iter.Key().Interface())
		}
		val, err := c.Coerce(iter.Value().Interface(), target.Elem())
		if err != nil {
			return nil, errors.Annotatef(err, "value for key %v", iter.Key().Interface())
		}
		out.SetMapIndex(reflect.ValueOf(key), reflect.ValueOf(val))
	}
	return out.Interface(), nil
}

func convert(value interface{}, target reflect.Type) interface{} {
	return reflect.ValueOf(value).Convert(target).Interface()
}

func notValid(err error, value interface{}, target reflect.Type) error {
	return errors.NewNotValid(err, fmt.Sprintf("coercing %v (%T) into %s", value, value, target))
}
