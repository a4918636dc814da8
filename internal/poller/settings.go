// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package poller

import (
	"github.com/juju/errors"

	"github.com/neykov/brooklyn-server/core/duration"
	"github.com/neykov/brooklyn-server/internal/coerce"
)

// Setting keys accepted by ApplySettings.
const (
	SettingPeriod             = "period"
	SettingSuppressDuplicates = "suppressDuplicates"
	SettingDescription        = "description"
)

// ApplySettings applies loosely-typed configuration (as handed over
// by a blueprint or properties layer) to cfg, coercing each value to
// the type the setting needs. Unknown keys are rejected rather than
// ignored, so a typo in a blueprint surfaces at wiring time instead
// of silently leaving a default in place.
func ApplySettings[T any](cfg *PollConfig[T], coercer *coerce.Coercer, settings map[string]interface{}) error {
	for key, raw := range settings {
		switch key {
		case SettingPeriod:
			d, err := coerce.To[duration.Duration](coercer, raw)
			if err != nil {
				return errors.Annotatef(err, "poll setting %q", key)
			}
			cfg.Period(d)
		case SettingSuppressDuplicates:
			suppress, err := coerce.To[bool](coercer, raw)
			if err != nil {
				return errors.Annotatef(err, "poll setting %q", key)
			}
			cfg.SuppressDuplicates(suppress)
		case SettingDescription:
			description, err := coerce.To[string](coercer, raw)
			if err != nil {
				return errors.Annotatef(err, "poll setting %q", key)
			}
			cfg.Description(description)
		default:
			return errors.NotValidf("poll setting %q", key)
		}
	}
	return nil
}
